package backend

import (
	"context"

	"boleta/internal/services"
	"boleta/internal/sheets"
)

// Backend is everything the payslip service needs from storage.
type Backend interface {
	sheets.PayslipStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// ReadyFunc reports whether the backend can serve requests.
type ReadyFunc func(ctx context.Context) error

// BackendResult contains the backend instance and its optional collaborators.
type BackendResult struct {
	Backend Backend
	// Publisher is set when totals should also leave the process (AMQP).
	Publisher services.TotalsPublisher
	Cleanup   CleanupFunc
	Ready     ReadyFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Memory backend specific
	DataDirectory string
	// Rule computes the totals of payslips seeded from DataDirectory.
	Rule services.RuleConfig
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
