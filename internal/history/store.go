// Package history keeps a log of played sounds and answers "most played"
// queries over it.
//
// Two backends exist: [MemoryStore] (the default, lost on restart) and
// [PostgresStore]. Recording is best effort; callers log and ignore errors.
package history

import (
	"context"
	"time"
)

// Play is one accepted play request.
type Play struct {
	GuildID string
	UserID  string
	Sound   string // catalog name, or the title of a remote stream
	Remote  bool
	At      time.Time
}

// Count is one row of a [Store.Top] result.
type Count struct {
	Sound string
	Plays int
}

// Store persists plays.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends p to the log. A zero p.At is replaced with the current
	// time.
	Record(ctx context.Context, p Play) error

	// Top returns the n most played sounds in guildID, most played first.
	// Ties are ordered by sound name. Remote streams are not counted.
	Top(ctx context.Context, guildID string, n int) ([]Count, error)

	// Close releases the store's resources.
	Close() error
}

// playedAt returns p.At, defaulting to now.
func playedAt(p Play) time.Time {
	if p.At.IsZero() {
		return time.Now().UTC()
	}
	return p.At
}
