package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"agentdb/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Record(ctx context.Context, e *models.AuditEvent) error {
	e.Prepare()

	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO audit_events (id, agent_id, action, tables_count, columns_count, relationships_count, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.AgentID,
		e.Action,
		e.TablesCount,
		e.ColumnsCount,
		e.RelationshipsCount,
		details,
		e.CreatedAt,
	)
	return err
}

func (r *AuditRepository) ListByAgent(ctx context.Context, agentID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, agent_id, action, tables_count, columns_count, relationships_count, details, created_at
		FROM audit_events WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var e models.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Action, &e.TablesCount, &e.ColumnsCount,
			&e.RelationshipsCount, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
