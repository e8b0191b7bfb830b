package anime

import (
	"context"
	"fmt"

	"github.com/animotaku/animotaku/internal/models"
	"github.com/animotaku/animotaku/internal/util"
)

func episodesKey(malID int) string {
	return fmt.Sprintf("EPISODES_%d", malID)
}

// Episodes returns the episode list for an anime, cache first. A cache hit
// short-circuits the network entirely; forceRefresh bypasses the cache and
// rewrites it from the backend response. Cache write failures are logged,
// never surfaced.
func (o *Orchestrator) Episodes(ctx context.Context, malID int, title string, forceRefresh bool) ([]models.Episode, error) {
	key := episodesKey(malID)
	if !forceRefresh {
		var cached []models.Episode
		ok, err := o.cache.GetJSON(key, &cached)
		if err != nil {
			util.Warnf("episode cache read for malId %d failed: %v", malID, err)
		} else if ok {
			util.Debugf("serving episodes for malId %d from cache", malID)
			return cached, nil
		}
	}

	episodes, err := o.backend.Episodes(ctx, title, malID)
	if err != nil {
		return nil, err
	}
	if err := o.cache.PutJSON(key, episodes); err != nil {
		util.Warnf("episode cache write for malId %d failed: %v", malID, err)
	}
	return episodes, nil
}
