package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interaction is one journaled operator action: a selection, an analyze
// request, a region acknowledgement, a verification, an export.
type Interaction struct {
	ID        string    `json:"id"`
	SlideID   string    `json:"slide_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendInteraction writes one journal entry. The caller supplies the
// action name; an empty ID gets a generated one.
func (c *Cache) AppendInteraction(ctx context.Context, entry Interaction) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `INSERT INTO interactions
		(id, slide_id, action, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SlideID, entry.Action, entry.Actor, entry.Details,
		entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append interaction: %w", err)
	}
	return nil
}

// RecentInteractions returns journal entries for a slide, newest first.
// An empty slideID returns entries across all slides. limit <= 0 means
// no limit.
func (c *Cache) RecentInteractions(ctx context.Context, slideID string, limit int) ([]Interaction, error) {
	query := `SELECT id, slide_id, action, actor, details, created_at
		FROM interactions`
	args := []interface{}{}

	if slideID != "" {
		query += ` WHERE slide_id = ?`
		args = append(args, slideID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var entries []Interaction
	for rows.Next() {
		var entry Interaction
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.SlideID, &entry.Action,
			&entry.Actor, &entry.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interaction rows: %w", err)
	}
	return entries, nil
}

// InteractionCount returns the total number of journaled entries.
func (c *Cache) InteractionCount(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

// LogAction is a convenience wrapper for the common journal shape.
func (c *Cache) LogAction(ctx context.Context, slideID, action, actor, details string) error {
	return c.AppendInteraction(ctx, Interaction{
		SlideID: slideID,
		Action:  action,
		Actor:   actor,
		Details: details,
	})
}
