package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
)

const historyColumns = `id, operation_id, kind, actor_id, payload, created_at`

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create is idempotent per (operation_id, kind).
func (r *HistoryRepository) Create(ctx context.Context, e *domain.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transaction_history (id, operation_id, kind, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (operation_id, kind) DO NOTHING`,
		e.ID, e.OperationID, e.Kind, e.ActorID, []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM transaction_history
		WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		actorID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByActor: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByActor: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByActor: rows: %w", err)
	}
	return entries, nil
}

func scanHistoryEntry(s scanner) (*domain.HistoryEntry, error) {
	var e domain.HistoryEntry
	var payload []byte
	if err := s.Scan(&e.ID, &e.OperationID, &e.Kind, &e.ActorID, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
