package backend

import (
	"context"
	"fmt"
	"log/slog"

	"boleta/internal/amqp"
	"boleta/internal/core"
	"boleta/internal/services"
	"boleta/internal/sheets/memory"
	"boleta/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := &BackendResult{
		Backend: sqliteRepo,
		Cleanup: sqliteRepo.Close,
		Ready:   sqliteRepo.Ping,
	}

	// AMQP is optional: the sync queue row written by Save is the durable
	// record, the message only shortens the export delay.
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without publishing", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = amqpClient
			result.Cleanup = func() error {
				amqpErr := amqpClient.Close()
				if err := sqliteRepo.Close(); err != nil {
					return err
				}
				return amqpErr
			}
		}
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	rule := config.Rule
	if rule.BaseConcept == "" {
		rule = services.DefaultRuleConfig()
	}
	engine := services.NewEngine(rule)
	store := memory.NewFromDir(dataDir, func(p *core.Payslip) core.FormattedTotals {
		return engine.Compute(p).Formatted
	})

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Backend: store,
	}, nil
}
