// Package pipeline wires the per-document flow (extract, dispatch, status
// report) and the per-batch flow (persist, change gate, analytics delivery).
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-pacsflow/pkg/aggregation"
	"github.com/illmade-knight/go-pacsflow/pkg/batchfile"
	"github.com/illmade-knight/go-pacsflow/pkg/dispatch"
	"github.com/illmade-knight/go-pacsflow/pkg/notifier"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/illmade-knight/go-pacsflow/pkg/status"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	Dispatcher *dispatch.Dispatcher
	Reporter   *status.Reporter
	BatchFile  *batchfile.File
	Gate       *aggregation.Gate
	Analytics  notifier.Deliverer
	// AnalyticsURL is the endpoint flushed batches are posted to.
	AnalyticsURL string
}

// Pipeline processes documents and flushed batches.
type Pipeline struct {
	deps   Dependencies
	logger zerolog.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Dependencies, logger zerolog.Logger) (*Pipeline, error) {
	if deps.Dispatcher == nil || deps.Reporter == nil {
		return nil, errors.New("dispatcher and reporter are required")
	}
	if deps.BatchFile == nil || deps.Gate == nil || deps.Analytics == nil {
		return nil, errors.New("batch file, change gate and analytics deliverer are required")
	}
	if deps.AnalyticsURL == "" {
		return nil, errors.New("analytics URL is required")
	}
	return &Pipeline{
		deps:   deps,
		logger: logger.With().Str("component", "Pipeline").Logger(),
	}, nil
}

// Process runs one document through extraction, the sinks and the status
// report. Sink failures are logged and do not fail the document; a status
// delivery failure does.
func (p *Pipeline) Process(ctx context.Context, doc pacs008.Document, correlationID string) (status.Report, error) {
	rec := pacs008.Extract(doc)
	p.logger.Debug().Str("correlation_id", correlationID).Object("record", rec).Msg("Extracted transfer record.")

	if err := p.deps.Dispatcher.Dispatch(ctx, correlationID, rec, doc); err != nil {
		p.logger.Warn().Err(err).Str("msg_id", rec.ID()).Str("correlation_id", correlationID).Msg("One or more sinks failed; continuing.")
	}

	return p.deps.Reporter.Report(ctx, rec)
}

// HandleBatch is the aggregation.FlushFunc. It persists the batch, then
// forwards it to analytics unless it equals the last forwarded batch. A failed
// delivery is reverted in the gate so the same content can be retried.
func (p *Pipeline) HandleBatch(ctx context.Context, batch aggregation.Batch) {
	if err := p.handleBatch(ctx, batch); err != nil {
		p.logger.Error().Err(err).Int("batch_size", len(batch.Items)).Str("flush_reason", string(batch.Reason)).Msg("Batch handling failed.")
	}
}

func (p *Pipeline) handleBatch(ctx context.Context, batch aggregation.Batch) error {
	body, err := batch.JSON()
	if err != nil {
		return err
	}
	if err := p.deps.BatchFile.Write(body); err != nil {
		return fmt.Errorf("failed to persist batch: %w", err)
	}

	forward, err := p.deps.Gate.ShouldForward(ctx, body)
	if err != nil {
		return err
	}
	if !forward {
		return nil
	}

	resp, err := p.deps.Analytics.Deliver(ctx, p.deps.AnalyticsURL, body)
	if err != nil {
		if revertErr := p.deps.Gate.Revert(ctx, body); revertErr != nil {
			err = errors.Join(err, revertErr)
		}
		return fmt.Errorf("error sending aggregated payments: %w", err)
	}
	p.logger.Info().Int("batch_size", len(batch.Items)).Int("status_code", resp.StatusCode).Msg("Aggregated payments forwarded.")
	return nil
}
