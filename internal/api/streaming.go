package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/animotaku/animotaku/internal/models"
	"github.com/pkg/errors"
)

// StreamingClient talks to the scraping-backed streaming API. Every response
// arrives in a {success, data} envelope; success=false surfaces as
// ErrUpstream so list state can distinguish it from transport failures.
type StreamingClient struct {
	c *Client
}

// NewStreamingClient builds a streaming client for baseURL
// (e.g. "http://host:1000/api/v2/hianime").
func NewStreamingClient(baseURL string, httpClient *http.Client) *StreamingClient {
	return &StreamingClient{c: NewClient(baseURL, httpClient, nil)}
}

type animePage struct {
	Animes      []models.AnimeSummary `json:"animes"`
	HasNextPage bool                  `json:"hasNextPage"`
}

func (s *StreamingClient) animeList(ctx context.Context, path string, page int) ([]models.AnimeSummary, bool, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	var resp struct {
		Success bool      `json:"success"`
		Data    animePage `json:"data"`
	}
	if err := s.c.Get(ctx, path, query, &resp); err != nil {
		return nil, false, err
	}
	if !resp.Success {
		return nil, false, errors.Wrap(ErrUpstream, path)
	}
	return resp.Data.Animes, resp.Data.HasNextPage, nil
}

// AZList fetches one page of the alphabetical all-anime list.
func (s *StreamingClient) AZList(ctx context.Context, page int) ([]models.AnimeSummary, bool, error) {
	return s.animeList(ctx, "/azlist/all", page)
}

// MostPopular fetches one page of the top-rated list.
func (s *StreamingClient) MostPopular(ctx context.Context, page int) ([]models.AnimeSummary, bool, error) {
	return s.animeList(ctx, "/category/most-popular", page)
}

// RecentlyUpdated fetches the non-paginated last-updates list.
func (s *StreamingClient) RecentlyUpdated(ctx context.Context) ([]models.AnimeSummary, error) {
	var resp struct {
		Success bool      `json:"success"`
		Data    animePage `json:"data"`
	}
	if err := s.c.Get(ctx, "/category/recently-updated", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.Wrap(ErrUpstream, "/category/recently-updated")
	}
	return resp.Data.Animes, nil
}

// AnimeInfo holds the detail fields the client needs from the streaming API;
// MalID is what the enrichment flows are after.
type AnimeInfo struct {
	ID     string `json:"id"`
	MalID  int    `json:"malId"`
	Name   string `json:"name"`
	Poster string `json:"poster"`
}

// Anime fetches the streaming API's detail record for one of its own ids.
func (s *StreamingClient) Anime(ctx context.Context, id string) (*AnimeInfo, error) {
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Anime struct {
				Info AnimeInfo `json:"info"`
			} `json:"anime"`
		} `json:"data"`
	}
	if err := s.c.Get(ctx, "/anime/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.Wrapf(ErrUpstream, "anime %s", id)
	}
	return &resp.Data.Anime.Info, nil
}

// Schedule fetches the airing schedule for a date in YYYY-MM-DD form.
func (s *StreamingClient) Schedule(ctx context.Context, date string) ([]models.ScheduleEntry, error) {
	query := url.Values{"date": {date}}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ScheduledAnimes []models.ScheduleEntry `json:"scheduledAnimes"`
		} `json:"data"`
	}
	if err := s.c.Get(ctx, "/schedule", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data.ScheduledAnimes, nil
}
