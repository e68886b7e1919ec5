package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-pacsflow/pkg/notifier"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/rs/zerolog"
)

// Reporter synthesizes a status report for a transfer and delivers it.
type Reporter struct {
	synth     *Synthesizer
	deliverer notifier.Deliverer
	endpoint  string
	logger    zerolog.Logger
}

// NewReporter creates a Reporter that posts reports to endpoint.
func NewReporter(synth *Synthesizer, deliverer notifier.Deliverer, endpoint string, logger zerolog.Logger) (*Reporter, error) {
	if synth == nil || deliverer == nil {
		return nil, fmt.Errorf("synthesizer and deliverer cannot be nil")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("status endpoint is required")
	}
	return &Reporter{
		synth:     synth,
		deliverer: deliverer,
		endpoint:  endpoint,
		logger:    logger.With().Str("component", "StatusReporter").Logger(),
	}, nil
}

// Report builds and delivers one report. A delivery failure is returned to the
// caller and affects only this transfer.
func (r *Reporter) Report(ctx context.Context, rec pacs008.TransferRecord) (Report, error) {
	report := r.synth.Synthesize(rec)
	body, err := json.Marshal(report)
	if err != nil {
		return report, fmt.Errorf("failed to marshal status report: %w", err)
	}

	resp, err := r.deliverer.Deliver(ctx, r.endpoint, body)
	if err != nil {
		r.logger.Error().Err(err).Str("msg_id", rec.ID()).Str("status", string(report.Status)).Msg("Error sending payment status.")
		return report, fmt.Errorf("error sending payment status for message %q: %w", rec.ID(), err)
	}

	r.logger.Info().
		Str("msg_id", rec.ID()).
		Str("status_msg_id", report.MessageID).
		Str("status", string(report.Status)).
		Int("status_code", resp.StatusCode).
		Msg("Payment status delivered.")
	return report, nil
}
