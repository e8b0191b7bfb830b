// Package platform declares the thin interfaces the host app injects: modal
// alerts, external link opening, and app foreground/background transitions.
// The library never renders UI itself.
package platform

import (
	"sync"

	"github.com/animotaku/animotaku/internal/util"
)

// Notifier shows user-visible messages. Alert is the modal error path for
// one-shot actions; Notice is informational.
type Notifier interface {
	Alert(title, message string)
	Notice(title, message string)
}

// LinkOpener opens a URL in an external browser.
type LinkOpener interface {
	CanOpen(url string) bool
	Open(url string) error
}

// LogNotifier routes notifications to the logger. Default when the host app
// injects nothing, and handy in tests.
type LogNotifier struct{}

func (LogNotifier) Alert(title, message string)  { util.Warnf("%s: %s", title, message) }
func (LogNotifier) Notice(title, message string) { util.Infof("%s: %s", title, message) }

// Monitor is a process-wide foreground/background observer. Platform glue
// calls NotifyForeground when the app returns to the foreground; subscribers
// run synchronously on that call.
type Monitor struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func()
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{subs: make(map[int]func())}
}

// OnForeground registers fn and returns its unsubscribe function.
func (m *Monitor) OnForeground(fn func()) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// NotifyForeground invokes every subscriber. Subscribers registered during
// the callbacks are not invoked until the next transition.
func (m *Monitor) NotifyForeground() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
