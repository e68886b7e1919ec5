package messagepipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-pacsflow/pkg/messagepipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c messagepipeline.MessageConsumer) messagepipeline.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		require.True(t, ok, "consumer closed unexpectedly")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbox file")
	}
	return messagepipeline.Message{}
}

func TestDirectoryConsumer_EmitsEachFileOnce(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"b":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte(`<a/>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	c, err := messagepipeline.NewDirectoryConsumer(messagepipeline.DirectoryConsumerConfig{Dir: dir, PollInterval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Act
	require.NoError(t, c.Start(ctx))
	first := receive(t, c)
	second := receive(t, c)
	first.Ack()
	second.Ack()

	// Assert
	assert.Equal(t, filepath.Join(dir, "a.xml"), first.ID)
	assert.Equal(t, "<a/>", string(first.Payload))
	assert.Equal(t, filepath.Join(dir, "b.json"), second.ID)
	assert.Equal(t, "b.json", second.Attributes["file_name"])

	select {
	case msg := <-c.Messages():
		t.Fatalf("unexpected re-emission of %s", msg.ID)
	case <-time.After(100 * time.Millisecond):
	}

	// A file arriving later is picked up by the next poll.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(`{}`), 0o644))
	third := receive(t, c)
	assert.Equal(t, filepath.Join(dir, "c.json"), third.ID)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, c.Stop(stopCtx))
	<-c.Done()
}

func TestDirectoryConsumer_NackedFileIsRetried(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{}`), 0o644))

	c, err := messagepipeline.NewDirectoryConsumer(messagepipeline.DirectoryConsumerConfig{Dir: dir, PollInterval: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, c.Start(ctx))

	receive(t, c).Nack()
	again := receive(t, c)
	assert.Equal(t, filepath.Join(dir, "a.json"), again.ID)
}

func TestNewDirectoryConsumer_MissingDir(t *testing.T) {
	_, err := messagepipeline.NewDirectoryConsumer(messagepipeline.DirectoryConsumerConfig{Dir: filepath.Join(t.TempDir(), "nope")}, zerolog.Nop())
	assert.Error(t, err)
}
