package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/tuvistavie/securerandom"
)

// ReplayEvent is a published realtime message kept briefly so reconnecting clients can catch up.
type ReplayEvent struct {
	ID          string
	CreatedAt   time.Time
	UserID      string
	ChannelName string
	MessageData map[string]interface{}
}

func StoreReplayEvent(ctx context.Context, userID string, channelName string, messageData map[string]interface{}) error {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	id, err := securerandom.Hex(16)
	if err != nil {
		return fmt.Errorf("failed to generate id: %w", err)
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO realtime_replay (id, created_at, user_id, channel_name, message_data)
		VALUES ($1, $2, $3, $4, $5)`,
		id, time.Now(), userID, channelName, messageData)
	if err != nil {
		return fmt.Errorf("failed to store replay event: %w", err)
	}

	return nil
}

// ListReplayEvents returns a user's events on channelName newer than since, oldest first.
func ListReplayEvents(ctx context.Context, userID string, channelName string, since time.Time) ([]ReplayEvent, error) {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT id, created_at, user_id, channel_name, message_data
		FROM realtime_replay
		WHERE user_id = $1 AND channel_name = $2 AND created_at > $3
		ORDER BY created_at ASC`, userID, channelName, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list replay events: %w", err)
	}
	defer rows.Close()

	events := []ReplayEvent{}
	for rows.Next() {
		e := ReplayEvent{}
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.UserID, &e.ChannelName, &e.MessageData); err != nil {
			return nil, fmt.Errorf("failed to scan replay event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func DeleteReplayEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	conn := MustGetPooledPostgresSession()
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM realtime_replay WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete replay events: %w", err)
	}
	return tag.RowsAffected(), nil
}
