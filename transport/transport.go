// Package transport hands composed messages to a mail submission service.
package transport

import (
	"context"
	"errors"
)

var ErrNoRecipients = errors.New("message has no recipients")

// Sender submits one raw RFC 5322 message to the given envelope recipients.
type Sender interface {
	Send(ctx context.Context, from string, rcpt []string, raw []byte) error
	Name() string
}
