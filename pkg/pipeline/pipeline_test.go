package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-pacsflow/pkg/aggregation"
	"github.com/illmade-knight/go-pacsflow/pkg/audit"
	"github.com/illmade-knight/go-pacsflow/pkg/batchfile"
	"github.com/illmade-knight/go-pacsflow/pkg/cache"
	"github.com/illmade-knight/go-pacsflow/pkg/dispatch"
	"github.com/illmade-knight/go-pacsflow/pkg/notifier"
	"github.com/illmade-knight/go-pacsflow/pkg/notify"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/illmade-knight/go-pacsflow/pkg/pipeline"
	"github.com/illmade-knight/go-pacsflow/pkg/status"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleDoc = `{"GrpHdr":{"MsgId":"M1"},"CdtTrfTxInf":[{"Dbtr":{"Nm":"Alice"},"Cdtr":{"Nm":"Bob"},"Amt":{"InstdAmt":{"":"100.50","Ccy":"USD"}}}]}`

// recordingServer stands in for the status and analytics endpoints.
type recordingServer struct {
	sync.Mutex
	*httptest.Server
	bodies [][]byte
	code   int
}

func newRecordingServer(t *testing.T) *recordingServer {
	t.Helper()
	rs := &recordingServer{code: http.StatusOK}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rs.Lock()
		rs.bodies = append(rs.bodies, b)
		code := rs.code
		rs.Unlock()
		w.WriteHeader(code)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) setCode(code int) {
	rs.Lock()
	defer rs.Unlock()
	rs.code = code
}

func (rs *recordingServer) received() [][]byte {
	rs.Lock()
	defer rs.Unlock()
	out := make([][]byte, len(rs.bodies))
	copy(out, rs.bodies)
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("mail server unreachable")
}
func (failingPublisher) Close() error { return nil }

type fixture struct {
	pipeline  *pipeline.Pipeline
	window    *aggregation.Window
	status    *recordingServer
	analytics *recordingServer
	auditDir  string
	batchFile *batchfile.File
}

func newFixture(t *testing.T, publisher notify.Publisher, windowCfg aggregation.Config) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &fixture{
		status:    newRecordingServer(t),
		analytics: newRecordingServer(t),
		auditDir:  filepath.Join(t.TempDir(), "audited-payments"),
	}

	deliverer := notifier.NewHTTPNotifier(notifier.HTTPNotifierConfig{Timeout: time.Second, StrictStatus: true}, nil, logger)

	var err error
	f.batchFile, err = batchfile.New(filepath.Join(t.TempDir(), "aggregated-payments.json"))
	require.NoError(t, err)
	gate, err := aggregation.NewGate(cache.NewInMemoryStore[string, string](0), "last", logger)
	require.NoError(t, err)
	reporter, err := status.NewReporter(status.NewSynthesizer(nil), deliverer, f.status.URL, logger)
	require.NoError(t, err)

	// The window needs the pipeline's flush func and the audit sink needs the
	// window, so the pipeline is created through a forward reference.
	var p *pipeline.Pipeline
	f.window, err = aggregation.NewWindow(windowCfg, func(ctx context.Context, b aggregation.Batch) { p.HandleBatch(ctx, b) }, logger)
	require.NoError(t, err)

	writer, err := audit.NewFileWriter(f.auditDir, logger)
	require.NoError(t, err)
	auditSink, err := audit.NewSink(writer, f.window, logger)
	require.NoError(t, err)
	notifySink, err := notify.NewSink(publisher, logger)
	require.NoError(t, err)
	d, err := dispatch.NewDispatcher([]dispatch.Sink{notifySink, auditSink}, cache.NewInMemoryStore[string, bool](0), logger)
	require.NoError(t, err)

	p, err = pipeline.New(pipeline.Dependencies{
		Dispatcher:   d,
		Reporter:     reporter,
		BatchFile:    f.batchFile,
		Gate:         gate,
		Analytics:    deliverer,
		AnalyticsURL: f.analytics.URL,
	}, logger)
	require.NoError(t, err)
	f.pipeline = p

	f.window.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.window.Stop(ctx)
	})
	return f
}

func decode(t *testing.T, raw string) pacs008.Document {
	t.Helper()
	doc, err := pacs008.Decode([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestPipeline_Process(t *testing.T) {
	// Arrange
	f := newFixture(t, notify.NewLogPublisher(zerolog.Nop()), aggregation.Config{Size: 10, QuietPeriod: 50 * time.Millisecond, Timeout: time.Second})

	// Act
	report, err := f.pipeline.Process(context.Background(), decode(t, exampleDoc), "inbox/m1.json")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, report.OriginalMessage.MessageID)
	assert.Equal(t, "M1", *report.OriginalMessage.MessageID)
	assert.Contains(t, status.Codes, report.Status)

	bodies := f.status.received()
	require.Len(t, bodies, 1)
	var sent status.Report
	require.NoError(t, json.Unmarshal(bodies[0], &sent))
	assert.Equal(t, report.MessageID, sent.MessageID)

	_, err = os.Stat(filepath.Join(f.auditDir, "M1.json"))
	assert.NoError(t, err, "audit record written")

	require.Eventually(t, func() bool { return len(f.analytics.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	var forwarded []map[string]any
	require.NoError(t, json.Unmarshal(f.analytics.received()[0], &forwarded))
	require.Len(t, forwarded, 1)
	assert.Equal(t, "M1", forwarded[0]["messageId"])

	onDisk, err := f.batchFile.Read()
	require.NoError(t, err)
	assert.JSONEq(t, string(f.analytics.received()[0]), string(onDisk))
}

func TestPipeline_NotifyFailureDoesNotBlockAuditOrStatus(t *testing.T) {
	f := newFixture(t, failingPublisher{}, aggregation.Config{Size: 10, QuietPeriod: time.Second, Timeout: time.Second})

	_, err := f.pipeline.Process(context.Background(), decode(t, exampleDoc), "c1")

	require.NoError(t, err)
	assert.Len(t, f.status.received(), 1)
	_, err = os.Stat(filepath.Join(f.auditDir, "M1.json"))
	assert.NoError(t, err)
}

func TestPipeline_StatusFailureFailsTheMessage(t *testing.T) {
	f := newFixture(t, notify.NewLogPublisher(zerolog.Nop()), aggregation.Config{Size: 10, QuietPeriod: time.Second, Timeout: time.Second})
	f.status.setCode(http.StatusServiceUnavailable)

	_, err := f.pipeline.Process(context.Background(), decode(t, exampleDoc), "c1")

	require.Error(t, err)
	assert.ErrorIs(t, err, notifier.ErrUnexpectedStatus)
	_, statErr := os.Stat(filepath.Join(f.auditDir, "M1.json"))
	assert.NoError(t, statErr, "sinks ran before the status report")
}

func TestPipeline_DegradedDocumentStillReports(t *testing.T) {
	f := newFixture(t, notify.NewLogPublisher(zerolog.Nop()), aggregation.Config{Size: 10, QuietPeriod: time.Second, Timeout: time.Second})

	report, err := f.pipeline.Process(context.Background(), decode(t, `{"CdtTrfTxInf":[]}`), "inbox/empty.json")

	require.NoError(t, err)
	assert.Nil(t, report.OriginalMessage.MessageID)
	assert.Contains(t, string(f.status.received()[0]), `"originalMessage":{"messageId":null}`)
	_, err = os.Stat(filepath.Join(f.auditDir, "inbox_empty.json.json"))
	assert.NoError(t, err, "audit falls back to the correlation id")
}

func TestPipeline_HandleBatch(t *testing.T) {
	ctx := context.Background()
	batch := aggregation.Batch{Items: []json.RawMessage{json.RawMessage(`{"messageId":"M1"}`)}, Reason: aggregation.ReasonSize}

	t.Run("unchanged batch is forwarded once", func(t *testing.T) {
		f := newFixture(t, notify.NewLogPublisher(zerolog.Nop()), aggregation.DefaultConfig())

		f.pipeline.HandleBatch(ctx, batch)
		f.pipeline.HandleBatch(ctx, batch)

		assert.Len(t, f.analytics.received(), 1)
		onDisk, err := f.batchFile.Read()
		require.NoError(t, err)
		assert.JSONEq(t, `[{"messageId":"M1"}]`, string(onDisk))
	})

	t.Run("failed delivery is retried on the next flush", func(t *testing.T) {
		f := newFixture(t, notify.NewLogPublisher(zerolog.Nop()), aggregation.DefaultConfig())
		f.analytics.setCode(http.StatusInternalServerError)

		f.pipeline.HandleBatch(ctx, batch)
		f.analytics.setCode(http.StatusOK)
		f.pipeline.HandleBatch(ctx, batch)
		f.pipeline.HandleBatch(ctx, batch)

		assert.Len(t, f.analytics.received(), 2, "one failed attempt, one successful retry, then suppression")
	})
}

func TestPipeline_SizeTriggeredBatchEndToEnd(t *testing.T) {
	f := newFixture(t, notify.NewLogPublisher(zerolog.Nop()), aggregation.Config{Size: 2, QuietPeriod: 10 * time.Second, Timeout: 10 * time.Second})
	ctx := context.Background()

	_, err := f.pipeline.Process(ctx, decode(t, exampleDoc), "a")
	require.NoError(t, err)
	_, err = f.pipeline.Process(ctx, decode(t, `{"FIToFICstmrCdtTrf":{"GrpHdr":{"MsgId":"M2"},"CdtTrfTxInf":{"Dbtr":{"Nm":"Carol"}}}}`), "b")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.analytics.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	var forwarded []map[string]any
	require.NoError(t, json.Unmarshal(f.analytics.received()[0], &forwarded))
	require.Len(t, forwarded, 2)
	assert.Equal(t, "M1", forwarded[0]["messageId"])
	assert.Equal(t, "M2", forwarded[1]["messageId"])
}
