package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tuvistavie/securerandom"
)

const WorkQueueTable = "work_queue"

// WorkItem is one claimed row of the work queue.
type WorkItem struct {
	ID           string
	Channel      string
	Payload      []byte
	AttemptCount int
}

// QueueStats counts the uncompleted rows of one channel.
type QueueStats struct {
	Total     int
	InFlight  int
	Available int
}

// EnqueueWork stores payload as JSON and notifies listeners on channel. It returns the row id.
func EnqueueWork(ctx context.Context, channel string, payload interface{}) (string, error) {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	id, err := securerandom.Hex(6)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = conn.Exec(ctx, `INSERT INTO work_queue (id, channel, payload, created_at) VALUES ($1, $2, $3, NOW())`, id, channel, b)
	if err != nil {
		return "", fmt.Errorf("failed to insert work: %w", err)
	}

	_, err = conn.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, id)
	if err != nil {
		return "", fmt.Errorf("failed to notify: %w", err)
	}

	return id, nil
}

func GetQueueStats(ctx context.Context, channel string) (*QueueStats, error) {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	stats := QueueStats{}
	err := conn.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN processing_started_at IS NOT NULL AND completed_at IS NULL THEN 1 END) AS in_flight,
			COUNT(CASE WHEN processing_started_at IS NULL AND completed_at IS NULL THEN 1 END) AS available
		FROM work_queue
		WHERE channel = $1
		AND completed_at IS NULL`, channel).Scan(&stats.Total, &stats.InFlight, &stats.Available)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue statistics: %w", err)
	}

	return &stats, nil
}

// ClaimWork locks up to limit rows that are new or whose processing started longer than
// maxDuration ago. Only retried rows have their attempt count incremented.
func ClaimWork(ctx context.Context, channel string, limit int, maxDuration time.Duration) ([]WorkItem, error) {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		WITH next_available_messages AS (
			SELECT id
			FROM work_queue
			WHERE completed_at IS NULL
			AND channel = $1
			AND (
				processing_started_at IS NULL
				OR processing_started_at < NOW() - $2::interval
			)
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE work_queue AS wq
		SET processing_started_at = NOW(),
			attempt_count = CASE
				WHEN wq.processing_started_at IS NOT NULL THEN COALESCE(wq.attempt_count, 0) + 1
				ELSE COALESCE(wq.attempt_count, 0)
			END
		FROM next_available_messages
		WHERE wq.id = next_available_messages.id
		RETURNING wq.id, wq.channel, wq.payload, COALESCE(wq.attempt_count, 0)::int`,
		channel, maxDuration.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim work: %w", err)
	}
	defer rows.Close()

	items := []WorkItem{}
	for rows.Next() {
		item := WorkItem{}
		if err := rows.Scan(&item.ID, &item.Channel, &item.Payload, &item.AttemptCount); err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read work items: %w", err)
	}

	return items, nil
}

func CompleteWork(ctx context.Context, id string) error {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	if _, err := conn.Exec(ctx, `UPDATE work_queue SET completed_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark work %s as completed: %w", id, err)
	}
	return nil
}

// FailWork releases the row for another attempt and records the error.
func FailWork(ctx context.Context, id string, cause error) error {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	_, err := conn.Exec(ctx, `
		UPDATE work_queue
		SET processing_started_at = NULL,
			last_error = $2,
			attempt_count = COALESCE(attempt_count, 0) + 1
		WHERE id = $1`, id, cause.Error())
	if err != nil {
		return fmt.Errorf("failed to mark work %s as failed: %w", id, err)
	}
	return nil
}
