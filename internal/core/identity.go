package core

import "context"

// Identity is the verified user a connection speaks for. It never changes once bound.
type Identity struct {
	UserID   int64
	Username string
}

// Verifier turns a handshake credential into an Identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}
