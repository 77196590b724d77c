package database

import (
	"fmt"
	"time"
)

// JoinOutcome describes how a join attempt ended
type JoinOutcome string

const (
	JoinSent      JoinOutcome = "sent"
	JoinConfirmed JoinOutcome = "confirmed"
	JoinRefused   JoinOutcome = "refused"
)

// JoinEvent is one recorded step of a channel join
type JoinEvent struct {
	ID         int64
	Channel    string
	Outcome    JoinOutcome
	OccurredAt time.Time
}

// SaveChannel adds name to the set of channels to join on startup
func (db *DB) SaveChannel(name string) error {
	query := `INSERT INTO desired_channels (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`
	if _, err := db.conn.Exec(query, name, time.Now()); err != nil {
		return fmt.Errorf("failed to save channel: %w", err)
	}
	return nil
}

// DeleteChannel removes name from the set of channels to join on startup
func (db *DB) DeleteChannel(name string) error {
	if _, err := db.conn.Exec(`DELETE FROM desired_channels WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}

// ListChannels returns the saved channel names in alphabetical order
func (db *DB) ListChannels() ([]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM desired_channels ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return names, nil
}

// RecordJoinEvent appends a join step to the history
func (db *DB) RecordJoinEvent(channel string, outcome JoinOutcome) error {
	query := `INSERT INTO join_events (channel, outcome, occurred_at) VALUES (?, ?, ?)`
	if _, err := db.conn.Exec(query, channel, string(outcome), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record join event: %w", err)
	}
	return nil
}

// RecentJoinEvents returns up to limit join events for channel, newest first
func (db *DB) RecentJoinEvents(channel string, limit int) ([]*JoinEvent, error) {
	query := `
		SELECT id, channel, outcome, occurred_at
		FROM join_events
		WHERE channel = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := db.conn.Query(query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query join events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []*JoinEvent
	for rows.Next() {
		ev := &JoinEvent{}
		var outcome string
		if err := rows.Scan(&ev.ID, &ev.Channel, &outcome, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan join event: %w", err)
		}
		ev.Outcome = JoinOutcome(outcome)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate join events: %w", err)
	}
	return events, nil
}

// PruneJoinEvents deletes join events older than before and returns how many were removed
func (db *DB) PruneJoinEvents(before time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM join_events WHERE occurred_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune join events: %w", err)
	}
	return result.RowsAffected()
}
