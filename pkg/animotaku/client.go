// Package animotaku is the embedding surface for host apps: it wires the
// API clients, the on-disk cache, the user session, and the list
// orchestrator into one handle.
package animotaku

import (
	"github.com/animotaku/animotaku/internal/anime"
	"github.com/animotaku/animotaku/internal/api"
	"github.com/animotaku/animotaku/internal/cache"
	"github.com/animotaku/animotaku/internal/chat"
	"github.com/animotaku/animotaku/internal/models"
	"github.com/animotaku/animotaku/internal/platform"
	"github.com/animotaku/animotaku/internal/playback"
	"github.com/animotaku/animotaku/internal/session"
	"github.com/animotaku/animotaku/internal/util"
	"github.com/pkg/errors"
)

// DefaultMetadataBaseURL is the public Jikan v4 endpoint.
const DefaultMetadataBaseURL = "https://api.jikan.moe/v4"

// Config carries the endpoints and host-app hooks a Client needs.
type Config struct {
	StreamingBaseURL string
	MetadataBaseURL  string
	BackendBaseURL   string

	// CachePath is the sqlite file backing the key-value cache.
	CachePath string

	SystemTheme session.Theme

	// Notifier and LinkOpener are the host app's UI hooks. Nil Notifier
	// falls back to the logger; LinkOpener is required for playback flows.
	Notifier   platform.Notifier
	LinkOpener platform.LinkOpener

	// AdURL is the external link opened before an episode unlocks.
	AdURL string
}

// Client is the assembled library handle. Create one per app process and
// Close it on shutdown.
type Client struct {
	cfg Config

	cache        *cache.Store
	session      *session.Store
	monitor      *platform.Monitor
	backend      *api.BackendClient
	orchestrator *anime.Orchestrator
}

// New builds a client from cfg and hydrates the session from the cache.
func New(cfg Config) (*Client, error) {
	if cfg.StreamingBaseURL == "" {
		return nil, errors.New("streaming base URL is required")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if cfg.CachePath == "" {
		return nil, errors.New("cache path is required")
	}
	if cfg.MetadataBaseURL == "" {
		cfg.MetadataBaseURL = DefaultMetadataBaseURL
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache")
	}

	sess := session.NewStore(store, cfg.SystemTheme)
	sess.Hydrate()

	// The streaming API serves the heavier list payloads; metadata and
	// backend calls are small JSON exchanges and use the fast profile.
	streaming := api.NewStreamingClient(cfg.StreamingBaseURL, util.GetSharedClient())
	metadata := api.NewMetadataClient(cfg.MetadataBaseURL, util.GetFastClient())
	backend := api.NewBackendClient(cfg.BackendBaseURL, util.GetFastClient(), sess)

	c := &Client{
		cfg:          cfg,
		cache:        store,
		session:      sess,
		monitor:      platform.NewMonitor(),
		backend:      backend,
		orchestrator: anime.NewOrchestrator(streaming, metadata, backend, store, sess),
	}
	return c, nil
}

// Anime returns the list orchestrator.
func (c *Client) Anime() *anime.Orchestrator { return c.orchestrator }

// Session returns the user session store.
func (c *Client) Session() *session.Store { return c.session }

// Backend returns the backend API client for account and coin operations.
func (c *Client) Backend() *api.BackendClient { return c.backend }

// Cache returns the key-value cache.
func (c *Client) Cache() *cache.Store { return c.cache }

// Monitor returns the foreground monitor. Platform glue calls its
// NotifyForeground on app resume.
func (c *Client) Monitor() *platform.Monitor { return c.monitor }

// NewChat opens a conversation manager for a character.
func (c *Client) NewChat(character models.ChatCharacter) *chat.Manager {
	return chat.NewManager(c.backend, c.cache, c.session, c.cfg.Notifier, character)
}

// NewPlaybackFlow starts an ad-gated playback flow for one anime's episode
// screen. onReady receives the resolved playback for handoff to the player.
func (c *Client) NewPlaybackFlow(animeID string, onReady func(playback.Playback)) *playback.Flow {
	return playback.NewFlow(c.backend, c.cfg.LinkOpener, c.cfg.Notifier, c.monitor, c.orchestrator, c.cfg.AdURL, animeID, onReady)
}

// Close releases the cache database.
func (c *Client) Close() error {
	return c.cache.Close()
}
