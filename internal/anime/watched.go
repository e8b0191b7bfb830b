package anime

import (
	"context"

	"github.com/animotaku/animotaku/internal/util"
	"github.com/samber/lo"
)

const watchedMapKey = "ANIME_WATCHED_MAP"

func cloneWatched(m map[string][]int) map[string][]int {
	out := make(map[string][]int, len(m))
	for id, eps := range m {
		out[id] = append([]int(nil), eps...)
	}
	return out
}

// LoadWatched hydrates the watched map from the local cache and, for a
// signed-in user, merges the server's copy in. The merge is a union per
// anime: locally recorded episodes never disappear because the server has
// not caught up. The merged map is written back to the cache.
func (o *Orchestrator) LoadWatched(ctx context.Context) {
	local := make(map[string][]int)
	if _, err := o.cache.GetJSON(watchedMapKey, &local); err != nil {
		util.Warnf("watched map cache read failed: %v", err)
		local = make(map[string][]int)
	}
	o.mu.Lock()
	o.watched = local
	o.mu.Unlock()

	userID := o.session.UserID()
	if userID == "" {
		return
	}

	server, err := o.backend.WatchedEpisodes(ctx, userID)
	if err != nil {
		util.Errorf("failed to fetch watched episodes: %v", err)
		return
	}

	o.mu.Lock()
	for id, eps := range server {
		o.watched[id] = lo.Union(o.watched[id], eps)
	}
	snapshot := cloneWatched(o.watched)
	o.mu.Unlock()

	if err := o.cache.PutJSON(watchedMapKey, snapshot); err != nil {
		util.Warnf("watched map cache write failed: %v", err)
	}
}

// MarkWatched records an episode as watched. The local map and cache are
// updated unconditionally; the server write is attempted only for a
// signed-in user and a failure there is logged, not surfaced.
func (o *Orchestrator) MarkWatched(ctx context.Context, animeID string, episode int) {
	if userID := o.session.UserID(); userID != "" {
		if err := o.backend.MarkWatched(ctx, userID, animeID, episode); err != nil {
			util.Warnf("failed to record watched episode on server: %v", err)
		}
	}

	o.mu.Lock()
	if o.watched == nil {
		o.watched = make(map[string][]int)
	}
	if !lo.Contains(o.watched[animeID], episode) {
		o.watched[animeID] = append(o.watched[animeID], episode)
	}
	snapshot := cloneWatched(o.watched)
	o.mu.Unlock()

	if err := o.cache.PutJSON(watchedMapKey, snapshot); err != nil {
		util.Warnf("watched map cache write failed: %v", err)
	}
}

// WatchedFor returns the watched episode numbers recorded for an anime.
func (o *Orchestrator) WatchedFor(animeID string) []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.watched[animeID]...)
}

// IsWatched reports whether an episode of an anime has been watched.
func (o *Orchestrator) IsWatched(animeID string, episode int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return lo.Contains(o.watched[animeID], episode)
}
