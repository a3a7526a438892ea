package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/upb/ai-racers/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ComparisonRunRepository stores finished comparisons. Persistence belongs to
// the caller of the comparison core; nothing in the core writes here.
type ComparisonRunRepository interface {
	// Create stores a run together with its results
	Create(ctx context.Context, run *models.ComparisonRun) error

	// GetByID retrieves a run and its results in their original order
	GetByID(ctx context.Context, id uuid.UUID) (*models.ComparisonRun, error)

	// List retrieves runs newest first, without their results
	List(ctx context.Context, limit, offset int) ([]*models.ComparisonRun, error)

	// Delete removes a run and its results
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repositories groups all repository instances
type Repositories struct {
	ComparisonRuns ComparisonRunRepository
}
