package history

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process [Store]. Only counts are kept.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]map[string]int // guild → sound → plays
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]map[string]int)}
}

// Record implements [Store].
func (s *MemoryStore) Record(_ context.Context, p Play) error {
	if p.Remote {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.counts[p.GuildID]
	if !ok {
		g = make(map[string]int)
		s.counts[p.GuildID] = g
	}
	g[p.Sound]++
	return nil
}

// Top implements [Store].
func (s *MemoryStore) Top(_ context.Context, guildID string, n int) ([]Count, error) {
	s.mu.Lock()
	out := make([]Count, 0, len(s.counts[guildID]))
	for sound, plays := range s.counts[guildID] {
		out = append(out, Count{Sound: sound, Plays: plays})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Plays, a.Plays); c != 0 {
			return c
		}
		return cmp.Compare(a.Sound, b.Sound)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Close implements [Store].
func (s *MemoryStore) Close() error { return nil }
