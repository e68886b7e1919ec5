//go:build integration

package audit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-pacsflow/pkg/audit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreWriter_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping Firestore integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	client, err := firestore.NewClient(ctx, "test-project")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	collection := "audit-" + uuid.NewString()
	w, err := audit.NewFirestoreWriter(client, collection, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, "M1", []byte(`{"messageId":"M1","document":{"":"text"}}`)))

	snap, err := client.Collection(collection).Doc("M1").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"messageId":"M1","document":{"":"text"}}`, snap.Data()["payload"])

	require.NoError(t, w.Write(ctx, "M1", []byte(`{"messageId":"M1","amount":"999"}`)))
	snap, err = client.Collection(collection).Doc("M1").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"messageId":"M1","amount":"999"}`, snap.Data()["payload"])
}
