package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/models"
)

// QueueStore is the persistent intake queue. It implements capture.IntakeQueue.
type QueueStore struct {
	db *DB
}

// Queue returns the intake queue store.
func (d *DB) Queue() *QueueStore {
	return &QueueStore{db: d}
}

// Enqueue appends a card. Queuing a card again replaces its entry and moves
// it to the back.
func (q *QueueStore) Enqueue(ctx context.Context, item capture.QueueItem) error {
	if item.Draft == nil {
		return fmt.Errorf("queue item %s has no draft", item.CardID)
	}
	if item.CardID == "" {
		item.CardID = item.Draft.ID
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	draftJSON, err := json.Marshal(item.Draft)
	if err != nil {
		return fmt.Errorf("failed to encode queued draft: %w", err)
	}
	touchedJSON, err := json.Marshal(item.Touched)
	if err != nil {
		return fmt.Errorf("failed to encode touched fields: %w", err)
	}

	tx, err := q.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enqueue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM intake_queue WHERE card_id = ?`, item.CardID); err != nil {
		return fmt.Errorf("failed to replace queued card: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO intake_queue (card_id, draft_json, touched_json, enqueued_at) VALUES (?, ?, ?, ?)`,
		item.CardID, string(draftJSON), string(touchedJSON), formatTime(item.EnqueuedAt),
	); err != nil {
		return fmt.Errorf("failed to enqueue card: %w", err)
	}
	return tx.Commit()
}

// Dequeue removes and returns the oldest card.
func (q *QueueStore) Dequeue(ctx context.Context) (capture.QueueItem, bool, error) {
	tx, err := q.db.db.BeginTx(ctx, nil)
	if err != nil {
		return capture.QueueItem{}, false, fmt.Errorf("failed to begin dequeue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	var item capture.QueueItem
	var draftJSON, enqueuedAt string
	var touchedJSON sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT seq, card_id, draft_json, touched_json, enqueued_at FROM intake_queue ORDER BY seq LIMIT 1`,
	).Scan(&seq, &item.CardID, &draftJSON, &touchedJSON, &enqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return capture.QueueItem{}, false, nil
	}
	if err != nil {
		return capture.QueueItem{}, false, fmt.Errorf("failed to read intake queue: %w", err)
	}
	if err := decodeItem(&item, draftJSON, touchedJSON, enqueuedAt); err != nil {
		return capture.QueueItem{}, false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM intake_queue WHERE seq = ?`, seq); err != nil {
		return capture.QueueItem{}, false, fmt.Errorf("failed to dequeue card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return capture.QueueItem{}, false, fmt.Errorf("failed to commit dequeue: %w", err)
	}
	return item, true, nil
}

// List returns the queued cards, oldest first.
func (q *QueueStore) List(ctx context.Context) ([]capture.QueueItem, error) {
	rows, err := q.db.db.QueryContext(ctx,
		`SELECT card_id, draft_json, touched_json, enqueued_at FROM intake_queue ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list intake queue: %w", err)
	}
	defer rows.Close()

	var out []capture.QueueItem
	for rows.Next() {
		var item capture.QueueItem
		var draftJSON, enqueuedAt string
		var touchedJSON sql.NullString
		if err := rows.Scan(&item.CardID, &draftJSON, &touchedJSON, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued card: %w", err)
		}
		if err := decodeItem(&item, draftJSON, touchedJSON, enqueuedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Remove drops a card from the queue. Unknown ids are ignored.
func (q *QueueStore) Remove(ctx context.Context, cardID string) error {
	if _, err := q.db.db.ExecContext(ctx, `DELETE FROM intake_queue WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("failed to remove queued card: %w", err)
	}
	return nil
}

func decodeItem(item *capture.QueueItem, draftJSON string, touchedJSON sql.NullString, enqueuedAt string) error {
	var draft models.CardDraft
	if err := json.Unmarshal([]byte(draftJSON), &draft); err != nil {
		return fmt.Errorf("failed to decode queued draft %s: %w", item.CardID, err)
	}
	item.Draft = &draft
	if touchedJSON.Valid && touchedJSON.String != "" && touchedJSON.String != "null" {
		if err := json.Unmarshal([]byte(touchedJSON.String), &item.Touched); err != nil {
			return fmt.Errorf("failed to decode touched fields of %s: %w", item.CardID, err)
		}
	}
	item.EnqueuedAt = parseTime(enqueuedAt)
	return nil
}
