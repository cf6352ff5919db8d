// Package exchange turns bytes this service already holds into short-lived,
// unguessable URLs that external providers can fetch.
package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultTTL is how long an entry stays fetchable after Put.
const DefaultTTL = 10 * time.Minute

// TokenLength gives ~190 bits with the default nanoid alphabet.
const TokenLength = 32

// ErrNotFound covers both unknown and expired tokens.
var ErrNotFound = errors.New("exchange: not found")

// Entry is a stored payload.
type Entry struct {
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// Store is the exchange contract. Implementations must be safe for
// concurrent use.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, token string) (Entry, error)
}

// NewToken returns a fresh random token.
func NewToken() (string, error) {
	return gonanoid.New(TokenLength)
}

// URL builds the public fetch URL for token.
func URL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/exchange/" + token
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
