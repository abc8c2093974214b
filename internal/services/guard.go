package services

import "sync"

// PodcastGuard serializes mutating work per podcast. Retention and sync both
// rewrite a podcast's artifact set, so they share one guard to keep their
// plans from interleaving.
type PodcastGuard struct {
	mu   sync.Mutex
	held map[int64]*sync.Mutex
}

// NewPodcastGuard returns an empty guard.
func NewPodcastGuard() *PodcastGuard {
	return &PodcastGuard{held: make(map[int64]*sync.Mutex)}
}

// Lock blocks until the podcast's slot is available.
func (g *PodcastGuard) Lock(podcastID int64) {
	g.slot(podcastID).Lock()
}

// TryLock acquires the podcast's slot without blocking. The caller must
// Unlock when it returns true.
func (g *PodcastGuard) TryLock(podcastID int64) bool {
	return g.slot(podcastID).TryLock()
}

// Unlock releases the podcast's slot.
func (g *PodcastGuard) Unlock(podcastID int64) {
	g.slot(podcastID).Unlock()
}

func (g *PodcastGuard) slot(podcastID int64) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.held[podcastID]
	if !ok {
		m = &sync.Mutex{}
		g.held[podcastID] = m
	}
	return m
}
