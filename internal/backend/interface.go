package backend

import (
	"context"

	"despesas/internal/services"
	"despesas/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is everything the server needs from the configured store.
type BackendResult struct {
	Repository storage.Repository
	// Publisher is nil when AMQP is not configured.
	Publisher services.Publisher
	Cleanup   CleanupFunc
	ping      func(ctx context.Context) error
}

// Ready reports whether the store answers. Backends without a health
// probe are always ready.
func (r *BackendResult) Ready(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Mutation events, sqlite only
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
