package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
)

// DefaultListLimit caps List when the caller passes no limit.
const DefaultListLimit = 100

// Journal records accepted operator commands.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
	// List returns the newest entries first.
	List(ctx context.Context, limit int) ([]JournalEntry, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit*10 {
		return DefaultListLimit
	}
	return limit
}

// Record inserts the entry into command_journal.
func (p *PostgresClient) Record(ctx context.Context, e JournalEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO command_journal (id, device_kind, device_id, action, value, source, operator, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, string(e.Device.Kind), e.Device.ID, string(e.Action), e.Value, e.Source, e.Operator, e.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to record command %s: %w", e.ID, err)
	}
	return nil
}

// List returns the most recent journal entries.
func (p *PostgresClient) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, device_kind, device_id, action, value, source, operator, submitted_at
		FROM command_journal
		ORDER BY submitted_at DESC
		LIMIT $1
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e      JournalEntry
			kind   string
			action string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Device.ID, &action, &e.Value, &e.Source, &e.Operator, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Device.Kind = types.DeviceKind(kind)
		e.Action = control.Action(action)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// MemoryJournal keeps the most recent entries in a ring. Used when no
// database is configured.
type MemoryJournal struct {
	mu       sync.Mutex
	entries  []JournalEntry
	capacity int
}

func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = DefaultListLimit
	}
	return &MemoryJournal{capacity: capacity}
}

func (m *MemoryJournal) Record(_ context.Context, e JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = append([]JournalEntry(nil), m.entries[over:]...)
	}
	return nil
}

func (m *MemoryJournal) List(_ context.Context, limit int) ([]JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = normalizeLimit(limit)
	out := make([]JournalEntry, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
