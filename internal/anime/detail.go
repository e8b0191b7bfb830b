package anime

import (
	"context"

	"github.com/animotaku/animotaku/internal/api"
	"github.com/animotaku/animotaku/internal/batch"
	"github.com/animotaku/animotaku/internal/models"
	"github.com/animotaku/animotaku/internal/util"
	"github.com/samber/lo"
)

// relatedChunkSize bounds both the chunking of relation entries and the
// concurrency used to resolve each chunk against the metadata API.
const relatedChunkSize = 3

// Detail bundles an anime's metadata record with its voice cast.
type Detail struct {
	Anime *models.MetaAnime
	Cast  []models.CastEntry
}

// FetchDetail loads the detail record for a malId. The cast fetch is
// best-effort: a failure logs and leaves Cast empty rather than failing the
// whole detail. Callers decide whether the returned error is user-visible;
// api.IsSilent marks the statuses that are swallowed without an alert.
func (o *Orchestrator) FetchDetail(ctx context.Context, malID int) (*Detail, error) {
	meta, err := o.metadata.AnimeByID(ctx, malID)
	if err != nil {
		return nil, err
	}
	d := &Detail{Anime: meta}

	cast, err := o.metadata.Characters(ctx, malID)
	if err != nil {
		util.Debugf("cast fetch for malId %d failed: %v", malID, err)
		return d, nil
	}
	d.Cast = cast
	return d, nil
}

// RelatedSeasons resolves the related-anime graph of a malId into display
// entries. Relations are deduped by mal_id, the anime itself is excluded,
// and resolution runs in chunks so at most relatedChunkSize metadata calls
// are in flight. Entries that fail to resolve are dropped; rate limits and
// missing records stay silent.
func (o *Orchestrator) RelatedSeasons(ctx context.Context, malID int) []models.RelatedSeason {
	entries, err := o.metadata.Relations(ctx, malID)
	if err != nil {
		if !api.IsSilent(err) {
			util.Errorf("failed to fetch relations for malId %d: %v", malID, err)
		}
		return nil
	}

	unique := lo.UniqBy(entries, func(e models.RelationEntry) int { return e.MalID })
	unique = lo.Filter(unique, func(e models.RelationEntry, _ int) bool { return e.MalID != malID })

	var seasons []models.RelatedSeason
	for _, chunk := range lo.Chunk(unique, relatedChunkSize) {
		resolved := batch.Process(ctx, chunk, func(ctx context.Context, e models.RelationEntry) *models.RelatedSeason {
			a, err := o.metadata.AnimeByID(ctx, e.MalID)
			if err != nil {
				if !api.IsSilent(err) {
					util.Debugf("related season %d failed: %v", e.MalID, err)
				}
				return nil
			}
			return &models.RelatedSeason{
				MalID:    a.MalID,
				Title:    a.DisplayTitle(),
				ImageURL: a.Images.JPG.ImageURL,
			}
		}, relatedChunkSize)
		for _, s := range resolved {
			if s != nil {
				seasons = append(seasons, *s)
			}
		}
	}
	return seasons
}
