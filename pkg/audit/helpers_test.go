package audit_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/illmade-knight/go-pacsflow/pkg/audit"
)

// mockGCSWriter buffers writes; closeErr simulates a failed finalize.
type mockGCSWriter struct {
	buf      bytes.Buffer
	closed   bool
	closeErr error
	onClose  func(*mockGCSWriter)
}

func (m *mockGCSWriter) Write(p []byte) (int, error) {
	if m.closed {
		return 0, errors.New("write on closed writer")
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	if m.closeErr == nil && m.onClose != nil {
		m.onClose(m)
	}
	return m.closeErr
}

type mockGCSObject struct {
	bucket      *mockGCSBucket
	name        string
	contentType string
}

func (o *mockGCSObject) NewWriter(_ context.Context, contentType string) io.WriteCloser {
	o.contentType = contentType
	w := &mockGCSWriter{closeErr: o.bucket.nextCloseErr()}
	w.onClose = func(w *mockGCSWriter) { o.bucket.store(o.name, w.buf.Bytes()) }
	return w
}

// mockGCSBucket stores finalized objects; a later write replaces the object.
type mockGCSBucket struct {
	sync.Mutex
	objects  map[string][]byte
	handles  map[string]*mockGCSObject
	closeErr error
}

func (b *mockGCSBucket) Object(name string) audit.GCSObjectHandle {
	b.Lock()
	defer b.Unlock()
	if b.handles == nil {
		b.handles = make(map[string]*mockGCSObject)
	}
	h := &mockGCSObject{bucket: b, name: name}
	b.handles[name] = h
	return h
}

func (b *mockGCSBucket) nextCloseErr() error {
	b.Lock()
	defer b.Unlock()
	return b.closeErr
}

func (b *mockGCSBucket) store(name string, data []byte) {
	b.Lock()
	defer b.Unlock()
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[name] = append([]byte(nil), data...)
}

func (b *mockGCSBucket) get(name string) ([]byte, bool) {
	b.Lock()
	defer b.Unlock()
	data, ok := b.objects[name]
	return data, ok
}

type mockGCSClient struct {
	bucketName string
	bucket     *mockGCSBucket
}

func newMockGCSClient() *mockGCSClient {
	return &mockGCSClient{bucket: &mockGCSBucket{}}
}

func (m *mockGCSClient) Bucket(name string) audit.GCSBucketHandle {
	m.bucketName = name
	return m.bucket
}

// mockAdmitter records admitted items.
type mockAdmitter struct {
	sync.Mutex
	items [][]byte
	err   error
}

func (m *mockAdmitter) Admit(_ context.Context, item []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, item)
	return nil
}

func (m *mockAdmitter) count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.items)
}
