// Package repository holds the MongoDB stores for session and user documents.
package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrDuplicateID is returned by SessionRepo.Create when the _id is
	// already taken; the allocator retries with a fresh token.
	ErrDuplicateID = errors.New("game id already exists")
	// ErrNoDocument is returned by updates that matched nothing.
	ErrNoDocument = errors.New("document not found")
)

// Every store call gets its own bounded timeout; the hosting platform gives
// handlers no deadline of their own.
const opTimeout = 5 * time.Second

// withRetry runs fn with a per-attempt timeout and retries exactly once on a
// transient backend error.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	err := fn(opCtx)
	cancel()
	if err == nil || !isTransient(err) {
		return err
	}
	opCtx, cancel = context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return fn(opCtx)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}
