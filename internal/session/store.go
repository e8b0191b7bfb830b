// Package session holds the user identity, auth token, theme and
// notification preferences, hydrated from the local cache at startup and
// persisted on every change.
package session

import (
	"sync"

	"github.com/animotaku/animotaku/internal/cache"
	"github.com/animotaku/animotaku/internal/util"
)

// Cache keys. The leading @ matches the persisted key names the mobile
// builds already wrote, so an upgrade keeps the stored session.
const (
	keyUserID    = "@user_id"
	keyAuthToken = "@auth_token"
	keyTheme     = "@user_theme"
)

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// NotificationPrefs are the push-notification toggles. Kept in memory only;
// registration itself is platform glue.
type NotificationPrefs struct {
	DailyQuiz   bool `json:"dailyQuiz"`
	NewComments bool `json:"newComments"`
}

// Store is the user session. An empty UserID means anonymous/guest.
type Store struct {
	mu            sync.RWMutex
	cache         *cache.Store
	systemTheme   Theme
	userID        string
	userName      string
	avatar        string
	authToken     string
	theme         Theme
	notifications NotificationPrefs
}

// NewStore builds an unhydrated store. systemTheme is the OS preference used
// as the theme fallback when nothing is cached.
func NewStore(c *cache.Store, systemTheme Theme) *Store {
	if systemTheme == "" {
		systemTheme = ThemeDark
	}
	return &Store{
		cache:       c,
		systemTheme: systemTheme,
		userName:    "Guest",
		theme:       ThemeDark,
		notifications: NotificationPrefs{
			DailyQuiz:   true,
			NewComments: true,
		},
	}
}

// Hydrate loads the persisted session at process start. A missing theme
// falls back to the system preference; cache errors leave the defaults in
// place rather than failing startup.
func (s *Store) Hydrate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok, err := s.cache.GetString(keyUserID); err != nil {
		util.Warnf("failed to load user id: %v", err)
	} else if ok {
		s.userID = id
	}

	if token, ok, err := s.cache.GetString(keyAuthToken); err != nil {
		util.Warnf("failed to load auth token: %v", err)
	} else if ok {
		s.authToken = token
	}

	if theme, ok, err := s.cache.GetString(keyTheme); err != nil {
		util.Warnf("failed to load theme: %v", err)
	} else if ok {
		s.theme = Theme(theme)
	} else {
		s.theme = s.systemTheme
	}
}

// UserID returns the current user id, empty for guests.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUserID stores the user id and persists it; an empty id (logout) removes
// the cache entry instead of writing a sentinel.
func (s *Store) SetUserID(id string) {
	s.mu.Lock()
	s.userID = id
	s.mu.Unlock()
	s.persistOrDelete(keyUserID, id)
}

// Token returns the bearer token, satisfying api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authToken
}

// SetAuthToken stores the token and persists it; empty removes the entry.
func (s *Store) SetAuthToken(token string) {
	s.mu.Lock()
	s.authToken = token
	s.mu.Unlock()
	s.persistOrDelete(keyAuthToken, token)
}

// Theme returns the active theme.
func (s *Store) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// SetTheme stores and persists the theme preference.
func (s *Store) SetTheme(theme Theme) {
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()
	if err := s.cache.PutString(keyTheme, string(theme)); err != nil {
		util.Warnf("failed to save theme: %v", err)
	}
}

// UserName returns the display name, "Guest" when anonymous.
func (s *Store) UserName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userName
}

// SetUserName updates the in-memory display name.
func (s *Store) SetUserName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userName = name
}

// Avatar returns the avatar URL.
func (s *Store) Avatar() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.avatar
}

// SetAvatar updates the in-memory avatar URL.
func (s *Store) SetAvatar(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatar = url
}

// Notifications returns the notification toggles.
func (s *Store) Notifications() NotificationPrefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications
}

// SetNotifications updates the notification toggles.
func (s *Store) SetNotifications(prefs NotificationPrefs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = prefs
}

func (s *Store) persistOrDelete(key, value string) {
	var err error
	if value == "" {
		err = s.cache.Delete(key)
	} else {
		err = s.cache.PutString(key, value)
	}
	if err != nil {
		util.Warnf("failed to save %s: %v", key, err)
	}
}
