package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/animotaku/animotaku/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// metadataRPS shapes our own traffic to the public metadata API, which
// enforces roughly three requests per second before answering 429.
const metadataRPS = 3

// MetadataClient talks to the Jikan-style public metadata API, keyed by malId.
// All calls pass through a client-side rate limiter; a 429 can still come
// back under burst load and surfaces as ErrRateLimited for the caller's
// retry policy.
type MetadataClient struct {
	c       *Client
	limiter *rate.Limiter
}

// NewMetadataClient builds a metadata client for baseURL
// (e.g. "https://api.jikan.moe/v4").
func NewMetadataClient(baseURL string, httpClient *http.Client) *MetadataClient {
	return &MetadataClient{
		c:       NewClient(baseURL, httpClient, nil),
		limiter: rate.NewLimiter(rate.Limit(metadataRPS), metadataRPS),
	}
}

func (m *MetadataClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait aborted")
	}
	return m.c.Get(ctx, path, query, out)
}

// AnimeByID fetches the full anime record for a malId.
func (m *MetadataClient) AnimeByID(ctx context.Context, malID int) (*models.MetaAnime, error) {
	var resp struct {
		Data models.MetaAnime `json:"data"`
	}
	if err := m.get(ctx, fmt.Sprintf("/anime/%d", malID), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data.MalID == 0 {
		return nil, errors.Errorf("anime %d has no mal_id in response", malID)
	}
	return &resp.Data, nil
}

// TopCharacters fetches one page of the top-characters ranking.
func (m *MetadataClient) TopCharacters(ctx context.Context, page int) ([]models.Character, error) {
	query := url.Values{"page": {strconv.Itoa(page)}}
	var resp struct {
		Data []models.Character `json:"data"`
	}
	if err := m.get(ctx, "/top/characters", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Characters fetches the cast list of an anime.
func (m *MetadataClient) Characters(ctx context.Context, malID int) ([]models.CastEntry, error) {
	var resp struct {
		Data []models.CastEntry `json:"data"`
	}
	if err := m.get(ctx, fmt.Sprintf("/anime/%d/characters", malID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Relations fetches the related-anime entries of an anime, flattened across
// relation groups.
func (m *MetadataClient) Relations(ctx context.Context, malID int) ([]models.RelationEntry, error) {
	var resp struct {
		Data []struct {
			Relation string                 `json:"relation"`
			Entry    []models.RelationEntry `json:"entry"`
		} `json:"data"`
	}
	if err := m.get(ctx, fmt.Sprintf("/anime/%d/relations", malID), nil, &resp); err != nil {
		return nil, err
	}
	var entries []models.RelationEntry
	for _, group := range resp.Data {
		entries = append(entries, group.Entry...)
	}
	return entries, nil
}
