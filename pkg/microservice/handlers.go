package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/illmade-knight/go-pacsflow/pkg/status"
	"github.com/rs/zerolog"
)

// CorrelationHeader lets a caller supply the correlation id of a document.
// Without it the request id is used.
const CorrelationHeader = "X-Correlation-ID"

// DocumentProcessor runs one document through the pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, doc pacs008.Document, correlationID string) (status.Report, error)
}

// BatchReader returns the last flushed batch.
type BatchReader interface {
	Read() ([]byte, error)
}

// PaymentHandlers serves document ingestion and the aggregated batch report.
type PaymentHandlers struct {
	processor DocumentProcessor
	batches   BatchReader
	maxBytes  int64
	logger    zerolog.Logger
}

// NewPaymentHandlers creates the handlers. Request bodies above maxBytes are
// rejected.
func NewPaymentHandlers(processor DocumentProcessor, batches BatchReader, maxBytes int64, logger zerolog.Logger) (*PaymentHandlers, error) {
	if processor == nil || batches == nil {
		return nil, errors.New("processor and batch reader cannot be nil")
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &PaymentHandlers{
		processor: processor,
		batches:   batches,
		maxBytes:  maxBytes,
		logger:    logger.With().Str("component", "PaymentHandlers").Logger(),
	}, nil
}

// Mount registers the routes on r.
func (h *PaymentHandlers) Mount(r chi.Router) {
	r.Post("/pacs008", h.IngestDocument)
	r.Get("/aggregated-payments", h.AggregatedPayments)
}

// IngestDocument accepts an XML or JSON pacs.008 document and answers with
// the status report that was delivered for it.
func (h *PaymentHandlers) IngestDocument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	doc, err := pacs008.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	correlationID := r.Header.Get(CorrelationHeader)
	if correlationID == "" {
		correlationID = middleware.GetReqID(r.Context())
	}

	report, err := h.processor.Process(r.Context(), doc, correlationID)
	if err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Document processing failed.")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AggregatedPayments returns the last flushed batch verbatim.
func (h *PaymentHandlers) AggregatedPayments(w http.ResponseWriter, _ *http.Request) {
	data, err := h.batches.Read()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read aggregated payments.")
		writeError(w, http.StatusInternalServerError, "failed to read aggregated payments")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
