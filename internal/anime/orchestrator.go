// Package anime owns the multi-source anime lists: six independently
// paginated/loading lists, per-anime detail and episodes, and the watched
// map. State lives here; screens only read snapshots.
package anime

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/animotaku/animotaku/internal/api"
	"github.com/animotaku/animotaku/internal/batch"
	"github.com/animotaku/animotaku/internal/cache"
	"github.com/animotaku/animotaku/internal/models"
	"github.com/animotaku/animotaku/internal/session"
	"github.com/animotaku/animotaku/internal/util"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ListKind identifies one of the orchestrated lists.
type ListKind string

const (
	ListAllAnime      ListKind = "all-anime"
	ListLastUpdates   ListKind = "last-updates"
	ListTopRated      ListKind = "top-rated"
	ListTopCharacters ListKind = "top-characters"
	ListLastWatch     ListKind = "last-watch"
	ListAirDates      ListKind = "air-dates"
)

// User-facing error strings. Fetch failures collapse to one of these; no
// structured codes are kept.
const (
	msgFetchError   = "An error occurred while fetching data."
	msgFetchFailed  = "Failed to fetch data."
	msgAirDatesFail = "Failed to fetch air dates."
)

const (
	// lastWatchConcurrency caps the metadata fan-out when resolving the
	// last-watched ids; the detail enrichment fan-outs share the same cap.
	lastWatchConcurrency = 5
	lastWatchRetries     = 3
	lastWatchRetryWait   = 2 * time.Second
)

// ListState is the state slice of one list. Loading and LoadingMore are
// never both true; a page-1 fetch replaces Items, later pages append.
// Err holds the display string of the most recent failure, empty otherwise.
type ListState[T any] struct {
	Items       []T
	Page        int
	HasNextPage bool
	Loading     bool
	LoadingMore bool
	Refreshing  bool
	Err         string
}

func cloneState[T any](s ListState[T]) ListState[T] {
	out := s
	out.Items = append([]T(nil), s.Items...)
	return out
}

// Orchestrator maintains the anime lists and their loading/error state.
// All exported methods are safe for concurrent use; a fetch for a kind that
// is already in flight returns immediately (dropped, not queued).
type Orchestrator struct {
	mu       sync.Mutex
	inflight map[ListKind]bool

	streaming *api.StreamingClient
	metadata  *api.MetadataClient
	backend   *api.BackendClient
	cache     *cache.Store
	session   *session.Store

	allAnime      ListState[models.AnimeSummary]
	lastUpdates   ListState[models.AnimeSummary]
	topRated      ListState[models.AnimeSummary]
	topCharacters ListState[models.Character]
	lastWatch     ListState[models.LastWatchAnime]
	airDates      ListState[models.ScheduleEntry]

	watched map[string][]int

	retryWait time.Duration
	now       func() time.Time
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(streaming *api.StreamingClient, metadata *api.MetadataClient, backend *api.BackendClient, cacheStore *cache.Store, sessionStore *session.Store) *Orchestrator {
	o := &Orchestrator{
		inflight:  make(map[ListKind]bool),
		streaming: streaming,
		metadata:  metadata,
		backend:   backend,
		cache:     cacheStore,
		session:   sessionStore,
		watched:   make(map[string][]int),
		retryWait: lastWatchRetryWait,
		now:       time.Now,
	}
	o.allAnime.HasNextPage = true
	o.topRated.HasNextPage = true
	o.topCharacters.HasNextPage = true
	return o
}

// tryBegin claims the in-flight slot for kind. A false return means another
// fetch for the same kind is running and this one must be dropped.
func (o *Orchestrator) tryBegin(kind ListKind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[kind] {
		return false
	}
	o.inflight[kind] = true
	return true
}

func (o *Orchestrator) end(kind ListKind) {
	o.mu.Lock()
	delete(o.inflight, kind)
	o.mu.Unlock()
}

func listErrMessage(err error) string {
	if errors.Is(err, api.ErrUpstream) {
		return msgFetchFailed
	}
	return msgFetchError
}

// FetchAllAnime loads one page of the all-anime list. Each summary is
// enriched with its malId through a bounded detail fan-out; entries whose
// detail fetch fails or lacks a malId are dropped from the page.
func (o *Orchestrator) FetchAllAnime(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	if !o.tryBegin(ListAllAnime) {
		return
	}
	defer o.end(ListAllAnime)

	o.mu.Lock()
	o.allAnime.Err = ""
	if page == 1 {
		o.allAnime.Loading = true
	} else {
		o.allAnime.LoadingMore = true
	}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.allAnime.Loading = false
		o.allAnime.LoadingMore = false
		o.mu.Unlock()
	}()

	animes, hasNext, err := o.streaming.AZList(ctx, page)
	if err != nil {
		util.Debugf("all-anime fetch failed: %v", err)
		o.mu.Lock()
		o.allAnime.Err = listErrMessage(err)
		o.mu.Unlock()
		return
	}

	valid := o.enrichMalIDs(ctx, animes)

	o.mu.Lock()
	if page == 1 {
		o.allAnime.Items = valid
	} else {
		o.allAnime.Items = append(o.allAnime.Items, valid...)
	}
	o.allAnime.Page = page
	o.allAnime.HasNextPage = hasNext
	o.mu.Unlock()
}

func (o *Orchestrator) enrichMalIDs(ctx context.Context, animes []models.AnimeSummary) []models.AnimeSummary {
	resolved := batch.Process(ctx, animes, func(ctx context.Context, a models.AnimeSummary) *models.AnimeSummary {
		info, err := o.streaming.Anime(ctx, a.ID)
		if err != nil {
			util.Debugf("detail fetch for anime %s failed: %v", a.ID, err)
			return nil
		}
		if info.MalID == 0 {
			return nil
		}
		a.MalID = info.MalID
		return &a
	}, lastWatchConcurrency)

	valid := lo.Filter(resolved, func(a *models.AnimeSummary, _ int) bool { return a != nil })
	return lo.Map(valid, func(a *models.AnimeSummary, _ int) models.AnimeSummary { return *a })
}

// FetchTopRated loads one page of the most-popular list. No enrichment.
func (o *Orchestrator) FetchTopRated(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	if !o.tryBegin(ListTopRated) {
		return
	}
	defer o.end(ListTopRated)

	o.mu.Lock()
	o.topRated.Err = ""
	if page == 1 {
		o.topRated.Loading = true
	} else {
		o.topRated.LoadingMore = true
	}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.topRated.Loading = false
		o.topRated.LoadingMore = false
		o.mu.Unlock()
	}()

	animes, hasNext, err := o.streaming.MostPopular(ctx, page)
	if err != nil {
		util.Debugf("top-rated fetch failed: %v", err)
		o.mu.Lock()
		o.topRated.Err = listErrMessage(err)
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	if page == 1 {
		o.topRated.Items = animes
	} else {
		o.topRated.Items = append(o.topRated.Items, animes...)
	}
	o.topRated.Page = page
	o.topRated.HasNextPage = hasNext
	o.mu.Unlock()
}

// FetchLastUpdates loads the recently-updated list. refresh selects the
// pull-to-refresh flag instead of the initial-load one.
func (o *Orchestrator) FetchLastUpdates(ctx context.Context, refresh bool) {
	if !o.tryBegin(ListLastUpdates) {
		return
	}
	defer o.end(ListLastUpdates)

	o.mu.Lock()
	o.lastUpdates.Err = ""
	if refresh {
		o.lastUpdates.Refreshing = true
	} else {
		o.lastUpdates.Loading = true
	}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.lastUpdates.Loading = false
		o.lastUpdates.Refreshing = false
		o.mu.Unlock()
	}()

	animes, err := o.streaming.RecentlyUpdated(ctx)
	if err != nil {
		util.Debugf("last-updates fetch failed: %v", err)
		o.mu.Lock()
		o.lastUpdates.Err = listErrMessage(err)
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	o.lastUpdates.Items = animes
	o.mu.Unlock()
}

// FetchTopCharacters loads one page of the top-characters ranking, deduping
// by mal_id against the already loaded pages. An empty page marks the end of
// pagination.
func (o *Orchestrator) FetchTopCharacters(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	if !o.tryBegin(ListTopCharacters) {
		return
	}
	defer o.end(ListTopCharacters)

	o.mu.Lock()
	o.topCharacters.Err = ""
	if page == 1 {
		o.topCharacters.Loading = true
	} else {
		o.topCharacters.LoadingMore = true
	}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.topCharacters.Loading = false
		o.topCharacters.LoadingMore = false
		o.mu.Unlock()
	}()

	characters, err := o.metadata.TopCharacters(ctx, page)
	if err != nil {
		util.Debugf("top-characters fetch failed: %v", err)
		o.mu.Lock()
		o.topCharacters.Err = listErrMessage(err)
		o.mu.Unlock()
		return
	}
	if characters == nil {
		o.mu.Lock()
		o.topCharacters.Err = msgFetchFailed
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(characters) == 0 {
		o.topCharacters.HasNextPage = false
		return
	}
	existing := o.topCharacters.Items
	fresh := lo.Filter(characters, func(c models.Character, _ int) bool {
		return !lo.ContainsBy(existing, func(e models.Character) bool { return e.MalID == c.MalID })
	})
	if page == 1 {
		o.topCharacters.Items = fresh
	} else {
		o.topCharacters.Items = append(existing, fresh...)
	}
	o.topCharacters.Page = page
}

// FetchLastWatch loads the last-watched carousel for the current user: the
// server's ordered id list, reversed most-recent-first, resolved to display
// metadata through the bounded batch with the 429-retry policy. Resolutions
// that still fail after the retries are dropped silently. Guests get an
// empty list without a network call.
func (o *Orchestrator) FetchLastWatch(ctx context.Context) {
	if !o.tryBegin(ListLastWatch) {
		return
	}
	defer o.end(ListLastWatch)

	userID := o.session.UserID()
	if userID == "" {
		o.mu.Lock()
		o.lastWatch.Items = nil
		o.lastWatch.Loading = false
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	o.lastWatch.Err = ""
	o.lastWatch.Loading = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.lastWatch.Loading = false
		o.mu.Unlock()
	}()

	ids, err := o.backend.LastWatch(ctx, userID)
	if err != nil {
		util.Debugf("last-watch fetch failed: %v", err)
		o.mu.Lock()
		o.lastWatch.Err = listErrMessage(err)
		o.mu.Unlock()
		return
	}
	if len(ids) == 0 {
		o.mu.Lock()
		o.lastWatch.Items = nil
		o.mu.Unlock()
		return
	}

	ids = lo.Reverse(append([]string(nil), ids...))

	worker := batch.RetryOn(func(ctx context.Context, id string) (*models.LastWatchAnime, error) {
		malID, err := strconv.Atoi(id)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid anime id %q", id)
		}
		a, err := o.metadata.AnimeByID(ctx, malID)
		if err != nil {
			return nil, err
		}
		return &models.LastWatchAnime{
			MalID:  a.MalID,
			Title:  lastWatchTitle(a),
			Images: a.Images,
		}, nil
	}, api.IsRateLimited, lastWatchRetries, o.retryWait)

	resolved := batch.Process(ctx, ids, worker, lastWatchConcurrency)
	items := lo.FilterMap(resolved, func(a *models.LastWatchAnime, _ int) (models.LastWatchAnime, bool) {
		if a == nil {
			return models.LastWatchAnime{}, false
		}
		return *a, true
	})

	o.mu.Lock()
	o.lastWatch.Items = items
	o.mu.Unlock()
}

func lastWatchTitle(a *models.MetaAnime) string {
	switch {
	case a.Title != "":
		return a.Title
	case a.TitleEnglish != "":
		return a.TitleEnglish
	default:
		return "No Title"
	}
}

// RefreshLastWatch re-runs FetchLastWatch under the pull-to-refresh flag.
func (o *Orchestrator) RefreshLastWatch(ctx context.Context) {
	o.mu.Lock()
	o.lastWatch.Refreshing = true
	o.mu.Unlock()
	o.FetchLastWatch(ctx)
	o.mu.Lock()
	o.lastWatch.Refreshing = false
	o.mu.Unlock()
}

// FetchAirDates loads today's airing schedule (local-zone date) and enriches
// each entry with detail data. Unlike the all-anime list, an entry whose
// detail fetch fails is kept with its enrichment fields zeroed; episode and
// time always survive from the schedule payload.
func (o *Orchestrator) FetchAirDates(ctx context.Context, refresh bool) {
	if !o.tryBegin(ListAirDates) {
		return
	}
	defer o.end(ListAirDates)

	o.mu.Lock()
	o.airDates.Err = ""
	if refresh {
		o.airDates.Refreshing = true
	} else {
		o.airDates.Loading = true
	}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.airDates.Loading = false
		o.airDates.Refreshing = false
		o.mu.Unlock()
	}()

	today := o.now().Format("2006-01-02")
	entries, err := o.streaming.Schedule(ctx, today)
	if err != nil {
		util.Debugf("air-dates fetch failed: %v", err)
		o.mu.Lock()
		o.airDates.Err = msgAirDatesFail
		o.mu.Unlock()
		return
	}
	if len(entries) == 0 {
		o.mu.Lock()
		o.airDates.Items = nil
		o.mu.Unlock()
		return
	}

	enriched := batch.Process(ctx, entries, func(ctx context.Context, e models.ScheduleEntry) models.ScheduleEntry {
		if e.Episode == "" {
			e.Episode = "N/A"
		}
		if e.Time == "" {
			e.Time = "N/A"
		}
		info, err := o.streaming.Anime(ctx, e.ID)
		if err != nil {
			util.Debugf("detail fetch for scheduled anime %s failed: %v", e.ID, err)
			e.MalID = 0
			e.Poster = ""
			return e
		}
		if info.ID != "" {
			e.ID = info.ID
		}
		if info.Name != "" {
			e.Name = info.Name
		}
		e.MalID = info.MalID
		e.Poster = info.Poster
		return e
	}, lastWatchConcurrency)

	o.mu.Lock()
	o.airDates.Items = enriched
	o.mu.Unlock()
}

// ResolveMalID resolves a streaming-API id to its malId, the key the detail
// screens navigate with.
func (o *Orchestrator) ResolveMalID(ctx context.Context, animeID string) (int, error) {
	info, err := o.streaming.Anime(ctx, animeID)
	if err != nil {
		return 0, err
	}
	if info.MalID == 0 {
		return 0, errors.Errorf("malId not found for anime %s", animeID)
	}
	return info.MalID, nil
}

// AllAnime returns a snapshot of the all-anime list state.
func (o *Orchestrator) AllAnime() ListState[models.AnimeSummary] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.allAnime)
}

// LastUpdates returns a snapshot of the last-updates list state.
func (o *Orchestrator) LastUpdates() ListState[models.AnimeSummary] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.lastUpdates)
}

// TopRated returns a snapshot of the top-rated list state.
func (o *Orchestrator) TopRated() ListState[models.AnimeSummary] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.topRated)
}

// TopCharacters returns a snapshot of the top-characters list state.
func (o *Orchestrator) TopCharacters() ListState[models.Character] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.topCharacters)
}

// LastWatch returns a snapshot of the last-watched list state.
func (o *Orchestrator) LastWatch() ListState[models.LastWatchAnime] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.lastWatch)
}

// AirDates returns a snapshot of the air-dates list state.
func (o *Orchestrator) AirDates() ListState[models.ScheduleEntry] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneState(o.airDates)
}
