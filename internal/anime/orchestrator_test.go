package anime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animotaku/animotaku/internal/api"
	"github.com/animotaku/animotaku/internal/cache"
	"github.com/animotaku/animotaku/internal/session"
)

// newTestOrchestrator points all three upstream clients at one httptest
// server and shrinks the retry pause so rate-limit tests run fast.
func newTestOrchestrator(t *testing.T, handler http.Handler) (*Orchestrator, *session.Store) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sess := session.NewStore(store, session.ThemeDark)
	o := NewOrchestrator(
		api.NewStreamingClient(srv.URL, srv.Client()),
		api.NewMetadataClient(srv.URL, srv.Client()),
		api.NewBackendClient(srv.URL, srv.Client(), sess),
		store,
		sess,
	)
	o.retryWait = 5 * time.Millisecond
	return o, sess
}

func TestFetchAllAnimeEnrichment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/azlist/all", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"animes":[
			{"id":"naruto","name":"Naruto"},
			{"id":"ghost","name":"Ghost"},
			{"id":"broken","name":"Broken"}
		],"hasNextPage":true}}`))
	})
	mux.HandleFunc("/anime/naruto", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"anime":{"info":{"id":"naruto","malId":20,"name":"Naruto"}}}}`))
	})
	mux.HandleFunc("/anime/ghost", func(w http.ResponseWriter, _ *http.Request) {
		// Detail resolves but carries no malId: the entry is dropped.
		w.Write([]byte(`{"success":true,"data":{"anime":{"info":{"id":"ghost","name":"Ghost"}}}}`))
	})
	mux.HandleFunc("/anime/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	o, _ := newTestOrchestrator(t, mux)
	o.FetchAllAnime(context.Background(), 1)

	state := o.AllAnime()
	require.Len(t, state.Items, 1)
	assert.Equal(t, "naruto", state.Items[0].ID)
	assert.Equal(t, 20, state.Items[0].MalID)
	assert.Equal(t, 1, state.Page)
	assert.True(t, state.HasNextPage)
	assert.Empty(t, state.Err)
	assert.False(t, state.Loading)
}

func TestFetchTopRatedPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/category/most-popular", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(`{"success":true,"data":{"animes":[{"id":"a","name":"A"}],"hasNextPage":true}}`))
		default:
			w.Write([]byte(`{"success":true,"data":{"animes":[{"id":"b","name":"B"}],"hasNextPage":false}}`))
		}
	})

	o, _ := newTestOrchestrator(t, mux)
	ctx := context.Background()

	o.FetchTopRated(ctx, 1)
	require.Len(t, o.TopRated().Items, 1)

	o.FetchTopRated(ctx, 2)
	state := o.TopRated()
	require.Len(t, state.Items, 2, "page two appends")
	assert.Equal(t, "a", state.Items[0].ID)
	assert.Equal(t, "b", state.Items[1].ID)
	assert.Equal(t, 2, state.Page)
	assert.False(t, state.HasNextPage)

	o.FetchTopRated(ctx, 1)
	assert.Len(t, o.TopRated().Items, 1, "page one replaces")
}

func TestFetchDropsDuplicateInFlight(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/category/recently-updated", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		w.Write([]byte(`{"success":true,"data":{"animes":[],"hasNextPage":false}}`))
	})

	o, _ := newTestOrchestrator(t, mux)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.FetchLastUpdates(ctx, false)
	}()

	// Wait until the first fetch is parked inside the handler, then issue a
	// duplicate: it must return without a second request.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, time.Millisecond)
	o.FetchLastUpdates(ctx, false)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestListErrorMessages(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/category/recently-updated", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		o, _ := newTestOrchestrator(t, mux)

		o.FetchLastUpdates(context.Background(), false)
		assert.Equal(t, "An error occurred while fetching data.", o.LastUpdates().Err)
	})

	t.Run("upstream reported failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/category/recently-updated", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"success":false}`))
		})
		o, _ := newTestOrchestrator(t, mux)

		o.FetchLastUpdates(context.Background(), false)
		assert.Equal(t, "Failed to fetch data.", o.LastUpdates().Err)
	})

	t.Run("air dates use their own message", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/schedule", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		o, _ := newTestOrchestrator(t, mux)

		o.FetchAirDates(context.Background(), false)
		assert.Equal(t, "Failed to fetch air dates.", o.AirDates().Err)
	})

	t.Run("items survive a failed refresh", func(t *testing.T) {
		var fail int32
		mux := http.NewServeMux()
		mux.HandleFunc("/category/recently-updated", func(w http.ResponseWriter, _ *http.Request) {
			if atomic.LoadInt32(&fail) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"success":true,"data":{"animes":[{"id":"a","name":"A"}],"hasNextPage":false}}`))
		})
		o, _ := newTestOrchestrator(t, mux)
		ctx := context.Background()

		o.FetchLastUpdates(ctx, false)
		require.Len(t, o.LastUpdates().Items, 1)

		atomic.StoreInt32(&fail, 1)
		o.FetchLastUpdates(ctx, true)
		state := o.LastUpdates()
		assert.Len(t, state.Items, 1, "stale items stay visible under the error")
		assert.Equal(t, "An error occurred while fetching data.", state.Err)
	})
}

func TestFetchTopCharactersDedup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/top/characters", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(`{"data":[{"mal_id":1,"name":"Luffy"},{"mal_id":2,"name":"Zoro"}]}`))
		case "2":
			// Rankings shift between pages; mal_id 2 appears again.
			w.Write([]byte(`{"data":[{"mal_id":2,"name":"Zoro"},{"mal_id":3,"name":"Nami"}]}`))
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	})

	o, _ := newTestOrchestrator(t, mux)
	ctx := context.Background()

	o.FetchTopCharacters(ctx, 1)
	o.FetchTopCharacters(ctx, 2)
	state := o.TopCharacters()
	require.Len(t, state.Items, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{state.Items[0].MalID, state.Items[1].MalID, state.Items[2].MalID})
	assert.True(t, state.HasNextPage)

	o.FetchTopCharacters(ctx, 3)
	state = o.TopCharacters()
	assert.False(t, state.HasNextPage, "an empty page ends pagination")
	assert.Len(t, state.Items, 3)
}

func TestFetchLastWatch(t *testing.T) {
	t.Run("guest skips the network", func(t *testing.T) {
		var calls int32
		o, _ := newTestOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusInternalServerError)
		}))

		o.FetchLastWatch(context.Background())
		assert.Zero(t, atomic.LoadInt32(&calls))
		assert.Empty(t, o.LastWatch().Items)
	})

	t.Run("reverses ids and retries rate limits", func(t *testing.T) {
		var hits101, hits102 int32
		mux := http.NewServeMux()
		mux.HandleFunc("/last-watch", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"animeIds":["101","102"]}`))
		})
		mux.HandleFunc("/anime/101", func(w http.ResponseWriter, _ *http.Request) {
			// Two rate limits, then success: inside the retry budget.
			if atomic.AddInt32(&hits101, 1) <= 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"data":{"mal_id":101,"title":"Bleach"}}`))
		})
		mux.HandleFunc("/anime/102", func(w http.ResponseWriter, _ *http.Request) {
			// Rate limited on every attempt: dropped after the budget.
			atomic.AddInt32(&hits102, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		})

		o, sess := newTestOrchestrator(t, mux)
		sess.SetUserID("user-1")

		o.FetchLastWatch(context.Background())

		state := o.LastWatch()
		require.Len(t, state.Items, 1)
		assert.Equal(t, 101, state.Items[0].MalID)
		assert.Equal(t, "Bleach", state.Items[0].Title)
		assert.Equal(t, int32(3), atomic.LoadInt32(&hits101))
		assert.Equal(t, int32(4), atomic.LoadInt32(&hits102), "initial attempt plus three retries")
	})

	t.Run("missing animeIds is an upstream failure", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/last-watch", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		})

		o, sess := newTestOrchestrator(t, mux)
		sess.SetUserID("user-1")

		o.FetchLastWatch(context.Background())
		assert.Equal(t, "Failed to fetch data.", o.LastWatch().Err)
	})
}

func TestFetchAirDatesKeepsFailedEnrichment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/schedule", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("date"))
		w.Write([]byte(`{"success":true,"data":{"scheduledAnimes":[
			{"id":"one-piece","name":"One Piece","episode":"1071","time":"09:30"},
			{"id":"flaky","name":"Flaky","episode":"","time":""}
		]}}`))
	})
	mux.HandleFunc("/anime/one-piece", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"anime":{"info":{"id":"one-piece","malId":21,"name":"One Piece","poster":"p.jpg"}}}}`))
	})
	mux.HandleFunc("/anime/flaky", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	o, _ := newTestOrchestrator(t, mux)
	o.now = func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }

	o.FetchAirDates(context.Background(), false)

	state := o.AirDates()
	require.Len(t, state.Items, 2, "failed enrichment keeps the entry")

	enriched := state.Items[0]
	assert.Equal(t, 21, enriched.MalID)
	assert.Equal(t, "p.jpg", enriched.Poster)
	assert.Equal(t, "1071", enriched.Episode)
	assert.Equal(t, "09:30", enriched.Time)

	bare := state.Items[1]
	assert.Zero(t, bare.MalID)
	assert.Empty(t, bare.Poster)
	assert.Equal(t, "Flaky", bare.Name)
	assert.Equal(t, "N/A", bare.Episode)
	assert.Equal(t, "N/A", bare.Time)
}

func TestEpisodesCacheFirst(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/fetchEpisodes", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success":true,"data":{"episodes":[{"episodeId":"naruto?ep=1","number":1,"title":"Enter Naruto"}]}}`))
	})

	o, _ := newTestOrchestrator(t, mux)
	ctx := context.Background()

	eps, err := o.Episodes(ctx, 20, "Naruto", false)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	eps, err = o.Episodes(ctx, 20, "Naruto", false)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "Enter Naruto", eps[0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second read is served from cache")

	_, err = o.Episodes(ctx, 20, "Naruto", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "force refresh bypasses the cache")
}

func TestLoadWatchedMergesServerAndLocal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/data", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"userData":{"watchedEpisodes":[{"animeId":"20","episodes":[2,3]}]}}`))
	})

	o, sess := newTestOrchestrator(t, mux)
	sess.SetUserID("user-1")
	require.NoError(t, o.cache.PutJSON("ANIME_WATCHED_MAP", map[string][]int{"20": {1, 2}}))

	o.LoadWatched(context.Background())

	assert.ElementsMatch(t, []int{1, 2, 3}, o.WatchedFor("20"))
	assert.True(t, o.IsWatched("20", 1), "locally watched episodes survive the merge")
	assert.True(t, o.IsWatched("20", 3))
	assert.False(t, o.IsWatched("20", 4))

	// The merged map is persisted for the next launch.
	var persisted map[string][]int
	ok, err := o.cache.GetJSON("ANIME_WATCHED_MAP", &persisted)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []int{1, 2, 3}, persisted["20"])
}

func TestMarkWatchedGuestIsLocalOnly(t *testing.T) {
	var serverWrites int32
	mux := http.NewServeMux()
	mux.HandleFunc("/watched", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&serverWrites, 1)
		w.Write([]byte(`{}`))
	})

	o, _ := newTestOrchestrator(t, mux)
	ctx := context.Background()

	o.MarkWatched(ctx, "20", 5)
	o.MarkWatched(ctx, "20", 5)

	assert.Zero(t, atomic.LoadInt32(&serverWrites))
	assert.Equal(t, []int{5}, o.WatchedFor("20"), "duplicate marks collapse")
}

func TestMarkWatchedPostsForSignedInUser(t *testing.T) {
	var serverWrites int32
	mux := http.NewServeMux()
	mux.HandleFunc("/watched", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&serverWrites, 1)
		w.Write([]byte(`{}`))
	})

	o, sess := newTestOrchestrator(t, mux)
	sess.SetUserID("user-1")

	o.MarkWatched(context.Background(), "20", 5)
	assert.Equal(t, int32(1), atomic.LoadInt32(&serverWrites))
	assert.True(t, o.IsWatched("20", 5))
}

func TestResolveMalID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/anime/naruto", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"anime":{"info":{"id":"naruto","malId":20}}}}`))
	})
	mux.HandleFunc("/anime/ghost", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"anime":{"info":{"id":"ghost"}}}}`))
	})

	o, _ := newTestOrchestrator(t, mux)
	ctx := context.Background()

	malID, err := o.ResolveMalID(ctx, "naruto")
	require.NoError(t, err)
	assert.Equal(t, 20, malID)

	_, err = o.ResolveMalID(ctx, "ghost")
	assert.Error(t, err)
}

func TestRelatedSeasons(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/anime/20/relations", func(w http.ResponseWriter, _ *http.Request) {
		// Duplicates across groups and a self-reference, both filtered out.
		w.Write([]byte(`{"data":[
			{"relation":"Sequel","entry":[{"mal_id":1735,"name":"Shippuden"},{"mal_id":20,"name":"Self"}]},
			{"relation":"Summary","entry":[{"mal_id":1735,"name":"Shippuden"}]}
		]}`))
	})
	mux.HandleFunc("/anime/1735", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":{"mal_id":1735,"title":"Naruto: Shippuden","images":{"jpg":{"image_url":"s.jpg"}}}}`))
	})

	o, _ := newTestOrchestrator(t, mux)

	seasons := o.RelatedSeasons(context.Background(), 20)
	require.Len(t, seasons, 1)
	assert.Equal(t, 1735, seasons[0].MalID)
	assert.Equal(t, "Naruto: Shippuden", seasons[0].Title)
	assert.Equal(t, "s.jpg", seasons[0].ImageURL)
}
