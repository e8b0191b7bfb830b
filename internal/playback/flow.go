// Package playback drives the ad-gated episode playback flow: external ad
// link, trust-on-resume unlock, source resolution, and subtitle selection.
package playback

import (
	"context"
	"sync"

	"github.com/animotaku/animotaku/internal/api"
	"github.com/animotaku/animotaku/internal/models"
	"github.com/animotaku/animotaku/internal/platform"
	"github.com/animotaku/animotaku/internal/util"
	"github.com/pkg/errors"
)

// State is the flow's position in the episode-to-player pipeline.
type State int

const (
	StateIdle State = iota
	// StateAdPending means the ad link was opened and the flow is waiting
	// for the app to return to the foreground.
	StateAdPending
	StateResolving
	// StateSubtitleChoice means the source carries multiple caption tracks
	// and playback is parked until the user picks one.
	StateSubtitleChoice
	StateReady
)

// Playback is the resolved handoff to the player.
type Playback struct {
	EpisodeID   string
	HLSURL      string
	SubtitleURL string
	Intro       *models.Skip
	Outro       *models.Skip
}

// WatchedRecorder marks an episode watched once playback is handed off.
type WatchedRecorder interface {
	MarkWatched(ctx context.Context, animeID string, episode int)
}

// Flow runs the gate for one anime's episodes. Selecting an episode opens
// the ad link and parks; the foreground transition after the ad unlocks the
// episode without verification. One flow instance serves one screen.
type Flow struct {
	mu sync.Mutex

	backend  *api.BackendClient
	opener   platform.LinkOpener
	notifier platform.Notifier
	recorder WatchedRecorder

	adURL   string
	animeID string

	state   State
	pending *models.Episode
	source  *models.EpisodeSource

	onReady func(Playback)

	cancelForeground func()
}

// NewFlow wires a flow and subscribes it to foreground transitions. Close
// must be called to drop the subscription.
func NewFlow(backend *api.BackendClient, opener platform.LinkOpener, notifier platform.Notifier, monitor *platform.Monitor, recorder WatchedRecorder, adURL, animeID string, onReady func(Playback)) *Flow {
	if notifier == nil {
		notifier = platform.LogNotifier{}
	}
	f := &Flow{
		backend:  backend,
		opener:   opener,
		notifier: notifier,
		recorder: recorder,
		adURL:    adURL,
		animeID:  animeID,
		onReady:  onReady,
	}
	f.cancelForeground = monitor.OnForeground(f.handleForeground)
	return f
}

// Close unsubscribes the flow from foreground transitions.
func (f *Flow) Close() {
	if f.cancelForeground != nil {
		f.cancelForeground()
		f.cancelForeground = nil
	}
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SelectEpisode starts the gate for an episode: the ad link opens externally
// and the flow parks in StateAdPending until the app foregrounds again. If
// the link cannot be opened the selection is abandoned with an alert and the
// state resets.
func (f *Flow) SelectEpisode(ctx context.Context, ep models.Episode) {
	f.mu.Lock()
	if f.state == StateResolving || f.state == StateAdPending {
		f.mu.Unlock()
		return
	}
	f.pending = &ep
	f.state = StateAdPending
	f.mu.Unlock()

	if !f.opener.CanOpen(f.adURL) {
		f.abandon("Error", "Cannot open the ad link.")
		return
	}
	if err := f.opener.Open(f.adURL); err != nil {
		util.Debugf("ad link open failed: %v", err)
		f.abandon("Error", "Cannot open the ad link.")
		return
	}
}

func (f *Flow) abandon(title, message string) {
	f.mu.Lock()
	f.pending = nil
	f.state = StateIdle
	f.mu.Unlock()
	f.notifier.Alert(title, message)
}

// handleForeground is the trust-on-resume unlock: returning to the app with
// a pending episode counts as having watched the ad, with no verification.
func (f *Flow) handleForeground() {
	f.mu.Lock()
	if f.state != StateAdPending || f.pending == nil {
		f.mu.Unlock()
		return
	}
	ep := *f.pending
	f.pending = nil
	f.state = StateResolving
	f.mu.Unlock()

	f.resolve(context.Background(), ep)
}

// resolve marks the episode watched, fetches its source and routes on the
// caption count: zero or one track goes straight to ready, more than one
// parks on the subtitle choice. Watched marking happens before the
// descriptor fetch; a failed resolve still counts the episode.
func (f *Flow) resolve(ctx context.Context, ep models.Episode) {
	if f.recorder != nil {
		f.recorder.MarkWatched(ctx, f.animeID, ep.Number)
	}

	src, err := f.backend.EpisodeSource(ctx, ep.EpisodeID)
	if err != nil {
		util.Debugf("episode source fetch failed: %v", err)
		f.mu.Lock()
		f.state = StateIdle
		f.source = nil
		f.mu.Unlock()
		// 404 and 429 from the descriptor endpoint stay silent.
		if !api.IsSilent(err) {
			f.notifier.Alert("Error", "Failed to load the episode. Please try again.")
		}
		return
	}

	f.mu.Lock()
	f.pending = &ep
	f.source = src
	captions := src.Captions()
	if len(captions) > 1 {
		f.state = StateSubtitleChoice
		f.mu.Unlock()
		return
	}
	subtitleURL := ""
	if len(captions) == 1 {
		subtitleURL = captions[0].File
	}
	f.mu.Unlock()

	f.handoff(ep, src, subtitleURL)
}

// CaptionTracks returns the tracks offered while parked on the subtitle
// choice.
func (f *Flow) CaptionTracks() []models.SubtitleTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.source == nil {
		return nil
	}
	return f.source.Captions()
}

// ChooseSubtitle resumes a parked playback with the picked track.
func (f *Flow) ChooseSubtitle(ctx context.Context, track models.SubtitleTrack) error {
	return f.resume(ctx, track.File)
}

// ChooseNone resumes a parked playback without subtitles.
func (f *Flow) ChooseNone(ctx context.Context) error {
	return f.resume(ctx, "")
}

func (f *Flow) resume(ctx context.Context, subtitleURL string) error {
	f.mu.Lock()
	if f.state != StateSubtitleChoice || f.pending == nil || f.source == nil {
		f.mu.Unlock()
		return errors.New("no subtitle choice pending")
	}
	ep := *f.pending
	src := f.source
	f.mu.Unlock()

	f.handoff(ep, src, subtitleURL)
	return nil
}

func (f *Flow) handoff(ep models.Episode, src *models.EpisodeSource, subtitleURL string) {
	f.mu.Lock()
	f.state = StateReady
	f.pending = nil
	f.source = nil
	f.mu.Unlock()

	if f.onReady != nil {
		f.onReady(Playback{
			EpisodeID:   ep.EpisodeID,
			HLSURL:      src.HLSURL,
			SubtitleURL: subtitleURL,
			Intro:       src.Intro,
			Outro:       src.Outro,
		})
	}
}
