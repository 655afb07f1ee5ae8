// Package gateway defines the mail capabilities the send orchestrator needs
// and the structured search query shared by every backend.
package gateway

import (
	"context"
	"errors"

	"github.com/dhcgn/mail-merge/model"
)

// ErrNotSupported is returned by backends that lack an operation, such as a
// read-only mailbox asked to send.
var ErrNotSupported = errors.New("operation not supported by mail gateway")

// Gateway is the mail transport seen by the orchestrator and resolvers.
type Gateway interface {
	// Name identifies the backend in logs.
	Name() string
	// ListDrafts returns up to limit drafts, most recent first.
	ListDrafts(ctx context.Context, limit int) ([]model.Draft, error)
	// Send delivers a new message.
	Send(ctx context.Context, msg model.Message) error
	// Search returns up to limit threads matching q, in backend order.
	Search(ctx context.Context, q Query, limit int) ([]model.Thread, error)
	// Reply sends msg as a reply inside thread.
	Reply(ctx context.Context, thread model.Thread, msg model.Message) error
}
