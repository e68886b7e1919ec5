// Package audit implements the audit sink: every dispatched payment is
// written durably under its message id and then handed to the aggregation
// window.
package audit

import (
	"context"
)

// Writer stores one serialized audit payload under a key. A later write for
// the same key replaces the stored payload.
type Writer interface {
	Write(ctx context.Context, key string, payload []byte) error
	Close() error
}
