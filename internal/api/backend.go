package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/animotaku/animotaku/internal/models"
	"github.com/pkg/errors"
)

// BackendClient talks to the application backend: auth, watch state, list
// status, character chat, coins, and the episode endpoints the backend
// proxies from the streaming source. Authenticated calls carry a bearer
// token from the TokenSource.
type BackendClient struct {
	c *Client
}

// NewBackendClient builds a backend client for baseURL.
func NewBackendClient(baseURL string, httpClient *http.Client, tokens TokenSource) *BackendClient {
	return &BackendClient{c: NewClient(baseURL, httpClient, tokens)}
}

// Health checks the backend's reachability before auth attempts.
func (b *BackendClient) Health(ctx context.Context) error {
	return b.c.Get(ctx, "/health", nil, nil)
}

// LoginResult is the identity the backend hands back on login.
type LoginResult struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	UserName string `json:"userName,omitempty"`
}

// Login exchanges credentials for a user id and bearer token.
func (b *BackendClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := b.c.Post(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.UserID == "" {
		return nil, errors.Wrap(ErrUpstream, "login response carried no userId")
	}
	return &out, nil
}

// Register creates an account; the backend follows up with a verification code.
func (b *BackendClient) Register(ctx context.Context, userName, email, password string) error {
	return b.c.Post(ctx, "/register", map[string]string{
		"userName": userName,
		"email":    email,
		"password": password,
	}, nil)
}

// Verify confirms the emailed verification code.
func (b *BackendClient) Verify(ctx context.Context, email, code string) error {
	return b.c.Post(ctx, "/verify", map[string]string{
		"email": email,
		"code":  code,
	}, nil)
}

// ResetPassword starts the password-reset flow for an email address.
func (b *BackendClient) ResetPassword(ctx context.Context, email string) error {
	return b.c.Post(ctx, "/reset-password", map[string]string{
		"email": email,
	}, nil)
}

// LastWatch returns the server-stored ordered list of watched-anime ids,
// oldest first. Callers reverse it for display.
func (b *BackendClient) LastWatch(ctx context.Context, userID string) ([]string, error) {
	query := url.Values{"userId": {userID}}
	var resp struct {
		AnimeIDs []string `json:"animeIds"`
	}
	if err := b.c.Get(ctx, "/last-watch", query, &resp); err != nil {
		return nil, err
	}
	if resp.AnimeIDs == nil {
		return nil, errors.Wrap(ErrUpstream, "last-watch response carried no animeIds")
	}
	return resp.AnimeIDs, nil
}

// WatchedEpisodes returns the server-side watched-episode map for a user,
// keyed by anime id.
func (b *BackendClient) WatchedEpisodes(ctx context.Context, userID string) (map[string][]int, error) {
	query := url.Values{"userId": {userID}}
	var resp struct {
		UserData struct {
			WatchedEpisodes []struct {
				AnimeID  string `json:"animeId"`
				Episodes []int  `json:"episodes"`
			} `json:"watchedEpisodes"`
		} `json:"userData"`
	}
	if err := b.c.Get(ctx, "/data", query, &resp); err != nil {
		return nil, err
	}
	out := make(map[string][]int, len(resp.UserData.WatchedEpisodes))
	for _, entry := range resp.UserData.WatchedEpisodes {
		out[entry.AnimeID] = entry.Episodes
	}
	return out, nil
}

// MarkWatched records one watched episode on the server.
func (b *BackendClient) MarkWatched(ctx context.Context, userID, animeID string, episode int) error {
	return b.c.Post(ctx, "/watched", map[string]interface{}{
		"userId":        userID,
		"animeId":       animeID,
		"episodeNumber": episode,
	}, nil)
}

// ListStatus fetches the user's watch-list status for an anime. An empty
// status means the anime is not on the list.
func (b *BackendClient) ListStatus(ctx context.Context, userID, animeID string) (models.ListStatus, error) {
	query := url.Values{"userId": {userID}, "animeId": {animeID}}
	var resp struct {
		AnimeStatus struct {
			Status models.ListStatus `json:"status"`
		} `json:"animeStatus"`
	}
	if err := b.c.Get(ctx, "/list", query, &resp); err != nil {
		return "", err
	}
	return resp.AnimeStatus.Status, nil
}

// SetListStatus stores the user's watch-list status for an anime.
func (b *BackendClient) SetListStatus(ctx context.Context, userID, animeID string, status models.ListStatus) error {
	return b.c.Post(ctx, "/list", map[string]interface{}{
		"userId":  userID,
		"animeId": animeID,
		"status":  status,
	}, nil)
}

// Episodes fetches the episode list for an anime, looked up by title with the
// malId as a disambiguator.
func (b *BackendClient) Episodes(ctx context.Context, title string, malID int) ([]models.Episode, error) {
	query := url.Values{
		"name":   {title},
		"mal_id": {strconv.Itoa(malID)},
	}
	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Episodes []models.Episode `json:"episodes"`
		} `json:"data"`
	}
	if err := b.c.Get(ctx, "/fetchEpisodes", query, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.Wrap(ErrUpstream, "/fetchEpisodes")
	}
	return resp.Data.Episodes, nil
}

// EpisodeSource resolves an episode id to its stream descriptor: HLS source,
// subtitle tracks and intro/outro markers.
func (b *BackendClient) EpisodeSource(ctx context.Context, episodeID string) (*models.EpisodeSource, error) {
	query := url.Values{"episodeId": {episodeID}}
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			Sources []struct {
				URL string `json:"url"`
			} `json:"sources"`
			Tracks []models.SubtitleTrack `json:"tracks"`
			Intro  *models.Skip           `json:"intro"`
			Outro  *models.Skip           `json:"outro"`
		} `json:"data"`
	}
	if err := b.c.Get(ctx, "/fetchEpisode", query, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Message != "" {
			return nil, errors.Wrap(ErrUpstream, resp.Message)
		}
		return nil, errors.Wrap(ErrUpstream, "/fetchEpisode")
	}
	if len(resp.Data.Sources) == 0 || resp.Data.Sources[0].URL == "" {
		return nil, errors.Errorf("episode %s has no HLS source", episodeID)
	}
	return &models.EpisodeSource{
		HLSURL: resp.Data.Sources[0].URL,
		Tracks: resp.Data.Tracks,
		Intro:  sanitizeSkip(resp.Data.Intro),
		Outro:  sanitizeSkip(resp.Data.Outro),
	}, nil
}

// sanitizeSkip drops zero or negative markers so downstream code can treat
// nil as "no interval".
func sanitizeSkip(s *models.Skip) *models.Skip {
	if s == nil || s.Start <= 0 {
		return nil
	}
	return s
}

// ChatHistory fetches the full transcript of a stored chat session.
func (b *BackendClient) ChatHistory(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	query := url.Values{"chatId": {chatID}}
	var resp struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := b.c.Get(ctx, "/get-history", query, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ChatSessions lists the stored sessions for a user and character.
func (b *BackendClient) ChatSessions(ctx context.Context, userID, characterName string) ([]models.ChatSession, error) {
	query := url.Values{"userId": {userID}, "characterName": {characterName}}
	var resp struct {
		Sessions []models.ChatSession `json:"sessions"`
	}
	if err := b.c.Get(ctx, "/chat-sessions", query, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// CharacterChatRequest is the payload of one chat turn.
type CharacterChatRequest struct {
	UserID        string `json:"userId"`
	ChatID        string `json:"chatId"`
	CharacterName string `json:"characterName"`
	Biography     string `json:"biography"`
	UserMessage   string `json:"userMessage"`
}

// CharacterChat sends one user message and returns the character's reply.
func (b *BackendClient) CharacterChat(ctx context.Context, req CharacterChatRequest) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	if err := b.c.Post(ctx, "/character-chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// SaveChatHistoryRequest is the full-transcript persistence payload.
type SaveChatHistoryRequest struct {
	UserID        string               `json:"userId"`
	ChatID        string               `json:"chatId"`
	CharacterName string               `json:"characterName"`
	Biography     string               `json:"biography"`
	Messages      []models.ChatMessage `json:"messages"`
}

// SaveChatHistory persists a transcript under its chatId.
func (b *BackendClient) SaveChatHistory(ctx context.Context, req SaveChatHistoryRequest) error {
	return b.c.Post(ctx, "/save-history", req, nil)
}

// DeleteChatSession removes a stored session.
func (b *BackendClient) DeleteChatSession(ctx context.Context, userID, chatID string) error {
	return b.c.Delete(ctx, "/delete-session", map[string]string{
		"chatId": chatID,
		"userId": userID,
	}, nil)
}

// Coins fetches the user's coin balance.
func (b *BackendClient) Coins(ctx context.Context, userID string) (int, error) {
	var resp struct {
		Coins int `json:"coins"`
	}
	if err := b.c.Get(ctx, fmt.Sprintf("/user/%s/coins", url.PathEscape(userID)), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Coins, nil
}

// AdReward is the backend's acknowledgement of a watched ad.
type AdReward struct {
	Message        string `json:"message"`
	CoinsRemaining int    `json:"coinsRemaining"`
}

// WatchAd reports an ad view and returns the coin reward.
func (b *BackendClient) WatchAd(ctx context.Context, userID, adType string) (*AdReward, error) {
	var out AdReward
	if err := b.c.Post(ctx, "/watch-ads", map[string]string{
		"userId": userID,
		"adType": adType,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
