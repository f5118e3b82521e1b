package projectstate

import (
	"context"
	"time"
)

// Store persists project records keyed by Key.
type Store interface {
	// Load returns the stored record and true, or Default and false when the key
	// is absent or its stored body cannot be read.
	Load(ctx context.Context, key string) (Record, bool)
	Save(ctx context.Context, key string, record Record) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return now
}
