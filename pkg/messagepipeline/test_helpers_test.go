package messagepipeline_test

import (
	"context"
	"sync"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-pacsflow/pkg/messagepipeline"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// newTestPubsubClient connects a client to an in-process Pub/Sub fake.
func newTestPubsubClient(t *testing.T, ctx context.Context, projectID string) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// MockMessageConsumer is a MessageConsumer fed by Push.
type MockMessageConsumer struct {
	msgChan    chan messagepipeline.Message
	doneChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
	startCount int
	stopCount  int
}

func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		msgChan:  make(chan messagepipeline.Message, bufferSize),
		doneChan: make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Messages() <-chan messagepipeline.Message { return m.msgChan }

func (m *MockMessageConsumer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCount++
	return nil
}

func (m *MockMessageConsumer) Stop(_ context.Context) error {
	m.mu.Lock()
	m.stopCount++
	m.mu.Unlock()
	m.Close()
	return nil
}

// Close closes the channels without counting as a Stop call.
func (m *MockMessageConsumer) Close() {
	m.stopOnce.Do(func() {
		close(m.msgChan)
		close(m.doneChan)
	})
}

func (m *MockMessageConsumer) Done() <-chan struct{} { return m.doneChan }

func (m *MockMessageConsumer) Push(msg messagepipeline.Message) { m.msgChan <- msg }

func (m *MockMessageConsumer) GetStartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

func (m *MockMessageConsumer) GetStopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCount
}
