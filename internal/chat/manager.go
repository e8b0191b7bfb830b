// Package chat manages a character-chat conversation: one active session per
// character, cached session ids, optimistic transcript updates, and explicit
// save-on-leave persistence.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/animotaku/animotaku/internal/api"
	"github.com/animotaku/animotaku/internal/cache"
	"github.com/animotaku/animotaku/internal/models"
	"github.com/animotaku/animotaku/internal/platform"
	"github.com/animotaku/animotaku/internal/session"
	"github.com/animotaku/animotaku/internal/util"
)

// fallbackReply is shown in character voice when the backend errors or
// returns an empty reply.
const fallbackReply = "I'm having trouble understanding. Please try again."

// Phase is the manager's coarse activity state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSending
)

// Manager drives one character conversation. All exported methods are safe
// for concurrent use. The transcript is held in memory and persisted to the
// backend only on explicit transitions (switch, new chat, leave), never per
// message.
type Manager struct {
	mu sync.Mutex

	backend  *api.BackendClient
	cache    *cache.Store
	session  *session.Store
	notifier platform.Notifier
	now      func() time.Time

	character models.ChatCharacter
	chatID    string
	messages  []models.ChatMessage
	sessions  []models.ChatSession
	phase     Phase
}

// NewManager builds a manager for one character. notifier may be nil, in
// which case notices go to the log.
func NewManager(backend *api.BackendClient, cacheStore *cache.Store, sessionStore *session.Store, notifier platform.Notifier, character models.ChatCharacter) *Manager {
	if notifier == nil {
		notifier = platform.LogNotifier{}
	}
	return &Manager{
		backend:   backend,
		cache:     cacheStore,
		session:   sessionStore,
		notifier:  notifier,
		character: character,
		now:       time.Now,
	}
}

// chatIDCacheKey is where the character's active chat id is remembered
// across launches.
func (m *Manager) chatIDCacheKey() string {
	return fmt.Sprintf("%s-chatId-%s", m.character.Name, m.session.UserID())
}

func (m *Manager) mintChatID() string {
	return fmt.Sprintf("%s-%d", m.character.Name, m.now().UnixMilli())
}

func (m *Manager) welcomeGreeting() models.ChatMessage {
	return models.ChatMessage{
		Sender:    models.SenderCharacter,
		Text:      fmt.Sprintf("Hello, Welcome to Animo Otaku!, I am %s. How can I help you today?", m.character.Name),
		Timestamp: m.now(),
	}
}

func (m *Manager) shortGreeting() models.ChatMessage {
	return models.ChatMessage{
		Sender:    models.SenderCharacter,
		Text:      fmt.Sprintf("Hello, I am %s. How can I help you today?", m.character.Name),
		Timestamp: m.now(),
	}
}

// Init resumes the cached chat session for this character if one exists,
// loading its stored transcript; otherwise it mints a fresh chat id, caches
// it, and opens with the welcome greeting. It also refreshes the session
// sidebar.
func (m *Manager) Init(ctx context.Context) {
	m.mu.Lock()
	m.phase = PhaseLoading
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.phase = PhaseIdle
		m.mu.Unlock()
	}()

	cached, ok, err := m.cache.GetString(m.chatIDCacheKey())
	if err != nil {
		util.Warnf("chat id cache read failed: %v", err)
	}

	if !ok || cached == "" {
		m.startFresh(m.welcomeGreeting())
	} else {
		m.mu.Lock()
		m.chatID = cached
		m.mu.Unlock()

		// Fail open: the alert fires but the conversation still becomes
		// usable with the greeting.
		history, err := m.backend.ChatHistory(ctx, cached)
		if err != nil {
			util.Debugf("chat history fetch for %s failed: %v", cached, err)
			m.notifier.Alert("Error", "Unable to load chat history. Please try again later.")
		}
		m.mu.Lock()
		if len(history) > 0 {
			m.messages = history
		} else {
			m.messages = []models.ChatMessage{m.shortGreeting()}
		}
		m.mu.Unlock()
	}

	m.RefreshSessions(ctx)
}

// startFresh mints a new chat id, persists it as the active one for this
// character, and resets the transcript to the given greeting. The long
// welcome line is reserved for the first-ever session; resets use the short
// one.
func (m *Manager) startFresh(greeting models.ChatMessage) {
	id := m.mintChatID()
	if err := m.cache.PutString(m.chatIDCacheKey(), id); err != nil {
		util.Warnf("chat id cache write failed: %v", err)
	}
	m.mu.Lock()
	m.chatID = id
	m.messages = []models.ChatMessage{greeting}
	m.mu.Unlock()
}

// Send submits one user message. The message is appended optimistically
// before the network call; the reply is appended only if the conversation
// has not been switched away in the meantime. Whitespace-only input is a
// no-op. A backend failure or empty reply yields the in-character fallback
// line instead of an error.
func (m *Manager) Send(ctx context.Context, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	m.mu.Lock()
	// No active session yet (Init has not run): nothing to send against.
	if m.chatID == "" {
		m.mu.Unlock()
		return
	}
	chatID := m.chatID
	m.messages = append(m.messages, models.ChatMessage{
		Sender:    models.SenderUser,
		Text:      trimmed,
		Timestamp: m.now(),
	})
	m.phase = PhaseSending
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.phase = PhaseIdle
		m.mu.Unlock()
	}()

	reply, err := m.backend.CharacterChat(ctx, api.CharacterChatRequest{
		UserID:        m.session.UserID(),
		ChatID:        chatID,
		CharacterName: m.character.Name,
		Biography:     m.character.BioOrDefault(),
		UserMessage:   trimmed,
	})
	if err != nil {
		util.Debugf("character chat call failed: %v", err)
		reply = ""
	}
	if reply == "" {
		reply = fallbackReply
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// The user may have switched or reset the session while the call was in
	// flight; a reply for a stale chat id is discarded.
	if m.chatID != chatID {
		util.Debugf("discarding stale reply for chat %s", chatID)
		return
	}
	m.messages = append(m.messages, models.ChatMessage{
		Sender:    models.SenderCharacter,
		Text:      reply,
		Timestamp: m.now(),
	})
}

// save persists the current transcript when it holds more than the opening
// greeting.
func (m *Manager) save(ctx context.Context) {
	m.mu.Lock()
	chatID := m.chatID
	messages := append([]models.ChatMessage(nil), m.messages...)
	m.mu.Unlock()

	if len(messages) <= 1 {
		return
	}
	err := m.backend.SaveChatHistory(ctx, api.SaveChatHistoryRequest{
		UserID:        m.session.UserID(),
		ChatID:        chatID,
		CharacterName: m.character.Name,
		Biography:     m.character.BioOrDefault(),
		Messages:      messages,
	})
	if err != nil {
		util.Warnf("failed to save chat history for %s: %v", chatID, err)
	}
}

// StartNewChat saves the current conversation, then resets to a fresh
// session.
func (m *Manager) StartNewChat(ctx context.Context) {
	m.save(ctx)
	m.startFresh(m.shortGreeting())
	m.RefreshSessions(ctx)
}

// SwitchTo makes a stored session the active one and loads its transcript.
// Switching to the already-active session is a no-op beyond an informational
// notice. The outgoing conversation is saved first.
func (m *Manager) SwitchTo(ctx context.Context, target models.ChatSession) {
	m.mu.Lock()
	current := m.chatID
	m.mu.Unlock()
	if target.ChatID == current {
		m.notifier.Notice("Info", "You are already in this chat session.")
		return
	}

	m.save(ctx)

	if err := m.cache.PutString(m.chatIDCacheKey(), target.ChatID); err != nil {
		util.Warnf("chat id cache write failed: %v", err)
	}
	m.mu.Lock()
	m.chatID = target.ChatID
	m.phase = PhaseLoading
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.phase = PhaseIdle
		m.mu.Unlock()
	}()

	history, err := m.backend.ChatHistory(ctx, target.ChatID)
	if err != nil {
		util.Debugf("chat history fetch for %s failed: %v", target.ChatID, err)
		m.notifier.Alert("Error", "Unable to load selected chat session.")
	}
	m.mu.Lock()
	if len(history) > 0 {
		m.messages = history
	} else {
		m.messages = []models.ChatMessage{m.shortGreeting()}
	}
	m.mu.Unlock()
}

// DeleteSession removes a stored session. Deleting the active session also
// resets the conversation to a fresh one.
func (m *Manager) DeleteSession(ctx context.Context, chatID string) error {
	if err := m.backend.DeleteChatSession(ctx, m.session.UserID(), chatID); err != nil {
		return err
	}

	m.mu.Lock()
	wasActive := m.chatID == chatID
	m.mu.Unlock()
	if wasActive {
		m.startFresh(m.shortGreeting())
	}
	m.RefreshSessions(ctx)
	return nil
}

// Leave saves the conversation on the way out of the chat screen. Blocking:
// callers invoke it before tearing the screen down.
func (m *Manager) Leave(ctx context.Context) {
	m.save(ctx)
}

// RefreshSessions reloads the stored-session sidebar for this character.
func (m *Manager) RefreshSessions(ctx context.Context) {
	sessions, err := m.backend.ChatSessions(ctx, m.session.UserID(), m.character.Name)
	if err != nil {
		util.Debugf("chat sessions fetch failed: %v", err)
		return
	}
	m.mu.Lock()
	m.sessions = sessions
	m.mu.Unlock()
}

// ChatID returns the active chat id.
func (m *Manager) ChatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatID
}

// Messages returns a snapshot of the transcript.
func (m *Manager) Messages() []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatMessage(nil), m.messages...)
}

// Sessions returns a snapshot of the stored-session list.
func (m *Manager) Sessions() []models.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ChatSession(nil), m.sessions...)
}

// Phase returns the current activity phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}
