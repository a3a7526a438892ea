package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-racers/models"
	"github.com/upb/ai-racers/repositories"
	"github.com/upb/ai-racers/services"
)

// ComparisonRunRepository implements repositories.ComparisonRunRepository
type ComparisonRunRepository struct {
	db     *DB
	txm    *TransactionManager
	logger *zap.Logger
}

// NewComparisonRunRepository creates a new comparison run repository
func NewComparisonRunRepository(db *DB, logger *zap.Logger) repositories.ComparisonRunRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparisonRunRepository{
		db:     db,
		txm:    NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Create stores the run row and one row per result in a single transaction
func (r *ComparisonRunRepository) Create(ctx context.Context, run *models.ComparisonRun) error {
	params, err := run.ParametersJSON()
	if err != nil {
		return services.WrapError(services.ErrorTypeInternal, "failed to encode parameters", err)
	}

	err = r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)

		_, err := executor.ExecContext(ctx, `
			INSERT INTO comparison_runs (id, test_name, system_prompt, user_prompt, parameters, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			run.ID,
			run.TestName,
			run.SystemPrompt,
			run.UserPrompt,
			params,
			run.CreatedAt,
		)
		if err != nil {
			return services.WrapError(services.ErrorTypeInternal, "failed to create comparison run", err)
		}

		for i := range run.Results {
			res := &run.Results[i]
			usage := res.TokenUsage
			if usage == nil {
				usage = &models.TokenUsage{}
			}
			_, err := executor.ExecContext(ctx, `
				INSERT INTO comparison_results (
					run_id, position, provider_id, model_id, status, response, error_message,
					duration_ms, prompt_tokens, completion_tokens, total_tokens, cached_tokens,
					reasoning_tokens, start_time, end_time
				) VALUES (
					$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
				)
			`,
				run.ID,
				i,
				string(res.ProviderID),
				res.ModelID,
				string(res.Status),
				nullString(res.Response),
				nullString(res.Error),
				res.DurationMs,
				usage.PromptTokens,
				usage.CompletionTokens,
				usage.TotalTokens,
				usage.CachedTokens,
				usage.ReasoningTokens,
				res.StartTime,
				res.EndTime,
			)
			if err != nil {
				return services.WrapError(services.ErrorTypeInternal, "failed to store result "+res.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("comparison run created",
		zap.String("id", run.ID.String()),
		zap.Int("results", len(run.Results)),
	)
	return nil
}

// GetByID retrieves a run and its results
func (r *ComparisonRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ComparisonRun, error) {
	query := `
		SELECT id, test_name, system_prompt, user_prompt, parameters, created_at
		FROM comparison_runs
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	run, err := scanRun(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", services.ErrRunNotFound, id)
		}
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to get comparison run", err)
	}

	results, err := r.results(ctx, executor, id)
	if err != nil {
		return nil, err
	}
	run.Results = results
	return run, nil
}

// List retrieves runs newest first
func (r *ComparisonRunRepository) List(ctx context.Context, limit, offset int) ([]*models.ComparisonRun, error) {
	query := `
		SELECT id, test_name, system_prompt, user_prompt, parameters, created_at
		FROM comparison_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to list comparison runs", err)
	}
	defer rows.Close()

	runs := []*models.ComparisonRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, services.WrapError(services.ErrorTypeInternal, "failed to scan comparison run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "error iterating comparison runs", err)
	}

	return runs, nil
}

// Delete removes a run; its results go with it through ON DELETE CASCADE
func (r *ComparisonRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM comparison_runs WHERE id = $1`, id)
	if err != nil {
		return services.WrapError(services.ErrorTypeInternal, "failed to delete comparison run", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return services.WrapError(services.ErrorTypeInternal, "failed to get rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", services.ErrRunNotFound, id)
	}

	r.logger.Debug("comparison run deleted", zap.String("id", id.String()))
	return nil
}

func (r *ComparisonRunRepository) results(ctx context.Context, executor Executor, runID uuid.UUID) ([]models.ComparisonResult, error) {
	query := `
		SELECT provider_id, model_id, status, response, error_message, duration_ms,
		       prompt_tokens, completion_tokens, total_tokens, cached_tokens, reasoning_tokens,
		       start_time, end_time
		FROM comparison_results
		WHERE run_id = $1
		ORDER BY position
	`

	rows, err := executor.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "failed to get comparison results", err)
	}
	defer rows.Close()

	results := []models.ComparisonResult{}
	for rows.Next() {
		var (
			res                       models.ComparisonResult
			provider, status          string
			response, errMsg          sql.NullString
			duration                  sql.NullInt64
			prompt, completion, total sql.NullInt64
			cached, reasoning         sql.NullInt64
			start, end                sql.NullTime
		)
		if err := rows.Scan(
			&provider,
			&res.ModelID,
			&status,
			&response,
			&errMsg,
			&duration,
			&prompt,
			&completion,
			&total,
			&cached,
			&reasoning,
			&start,
			&end,
		); err != nil {
			return nil, services.WrapError(services.ErrorTypeInternal, "failed to scan comparison result", err)
		}

		res.ProviderID = models.ProviderID(provider)
		res.Status = models.ResultStatus(status)
		res.Response = response.String
		res.Error = errMsg.String
		if duration.Valid {
			d := duration.Int64
			res.DurationMs = &d
		}
		res.StartTime = timePtr(start)
		res.EndTime = timePtr(end)
		if prompt.Valid || completion.Valid || total.Valid {
			res.TokenUsage = &models.TokenUsage{
				PromptTokens:     intPtr(prompt),
				CompletionTokens: intPtr(completion),
				TotalTokens:      intPtr(total),
				CachedTokens:     intPtr(cached),
				ReasoningTokens:  intPtr(reasoning),
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, services.WrapError(services.ErrorTypeInternal, "error iterating comparison results", err)
	}

	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.ComparisonRun, error) {
	run := &models.ComparisonRun{}
	var params []byte
	if err := row.Scan(
		&run.ID,
		&run.TestName,
		&run.SystemPrompt,
		&run.UserPrompt,
		&params,
		&run.CreatedAt,
	); err != nil {
		return nil, err
	}

	if len(params) > 0 {
		run.Parameters = &models.AdvancedParameters{}
		if err := json.Unmarshal(params, run.Parameters); err != nil {
			return nil, fmt.Errorf("invalid parameters for run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
