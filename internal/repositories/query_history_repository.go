package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentdb/internal/models"
)

type QueryHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewQueryHistoryRepository(pool *pgxpool.Pool) *QueryHistoryRepository {
	return &QueryHistoryRepository{pool: pool}
}

func (r *QueryHistoryRepository) Create(ctx context.Context, queryHistory *models.QueryHistory) error {
	queryHistory.Prepare()

	query := `
		INSERT INTO query_history (id, agent_id, query_text, executed_at, success, row_count, execution_time_ms, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		queryHistory.ID,
		queryHistory.AgentID,
		queryHistory.QueryText,
		queryHistory.ExecutedAt,
		queryHistory.Success,
		queryHistory.RowCount,
		queryHistory.ExecutionTimeMs,
		queryHistory.ErrorMessage,
	)

	return err
}

func (r *QueryHistoryRepository) GetByAgentID(ctx context.Context, agentID uuid.UUID, limit int) ([]models.QueryHistory, error) {
	if limit <= 0 {
		limit = 100 // Default limit
	}

	query := `
		SELECT id, agent_id, query_text, executed_at, success, row_count, execution_time_ms, error_message
		FROM query_history WHERE agent_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []models.QueryHistory{}
	for rows.Next() {
		var h models.QueryHistory
		err := rows.Scan(
			&h.ID,
			&h.AgentID,
			&h.QueryText,
			&h.ExecutedAt,
			&h.Success,
			&h.RowCount,
			&h.ExecutionTimeMs,
			&h.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, h)
	}

	return history, rows.Err()
}
