// Package models contains the data structures shared across the client core.
package models

// AnimeSummary is a single list entry from the streaming API feeds
// (az-list, most-popular, recently-updated).
//
// MalID is the cross-service join key and stays zero until the enrichment
// step resolves it; list logic treats a zero MalID as incomplete.
type AnimeSummary struct {
	ID       string       `json:"id"`
	MalID    int          `json:"malId,omitempty"`
	Name     string       `json:"name"`
	Poster   string       `json:"poster"`
	Episodes EpisodeCount `json:"episodes"`
}

// EpisodeCount carries the sub/dub episode counters the streaming API
// attaches to list entries.
type EpisodeCount struct {
	Sub int `json:"sub"`
	Dub int `json:"dub"`
}

// ScheduleEntry is one item of today's airing schedule. MalID and Poster may
// stay zero/empty when the per-item detail fetch fails; Episode and Time are
// always preserved from the schedule payload.
type ScheduleEntry struct {
	ID      string `json:"id"`
	MalID   int    `json:"malId,omitempty"`
	Name    string `json:"name"`
	Poster  string `json:"poster,omitempty"`
	Episode string `json:"episode"`
	Time    string `json:"time"`
}

// Episode is one entry of an anime's episode list from the streaming API.
type Episode struct {
	EpisodeID string `json:"episodeId"`
	Number    int    `json:"number"`
	Title     string `json:"title,omitempty"`
	IsFiller  bool   `json:"isFiller,omitempty"`
}

// ImageSet mirrors the metadata API's image envelope.
type ImageSet struct {
	JPG ImageURLs `json:"jpg"`
}

// ImageURLs holds the image variants the metadata API exposes.
type ImageURLs struct {
	ImageURL      string `json:"image_url"`
	LargeImageURL string `json:"large_image_url,omitempty"`
}

// MetaAnime is the metadata API's anime detail record.
type MetaAnime struct {
	MalID        int      `json:"mal_id"`
	Title        string   `json:"title"`
	TitleEnglish string   `json:"title_english,omitempty"`
	Images       ImageSet `json:"images"`
	Episodes     int      `json:"episodes,omitempty"`
	Score        float64  `json:"score,omitempty"`
	Synopsis     string   `json:"synopsis,omitempty"`
	Status       string   `json:"status,omitempty"`
}

// DisplayTitle prefers the English title when the upstream provides one.
func (a *MetaAnime) DisplayTitle() string {
	if a.TitleEnglish != "" {
		return a.TitleEnglish
	}
	return a.Title
}

// Character is a metadata API character record (top-characters list and
// per-anime cast).
type Character struct {
	MalID  int      `json:"mal_id"`
	Name   string   `json:"name"`
	Images ImageSet `json:"images"`
	Bio    string   `json:"about,omitempty"`
}

// CastEntry pairs a character with its role for the cast tab.
type CastEntry struct {
	Character Character `json:"character"`
	Role      string    `json:"role"`
}

// RelationEntry is one related anime reference from the relations endpoint.
type RelationEntry struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
}

// RelatedSeason is a fully resolved related entry ready for display.
type RelatedSeason struct {
	MalID    int    `json:"mal_id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

// LastWatchAnime is a resolved entry of the last-watched carousel.
type LastWatchAnime struct {
	MalID  int      `json:"mal_id"`
	Title  string   `json:"title"`
	Images ImageSet `json:"images"`
}

// ListStatus is the per-anime watch-list status kept on the backend.
type ListStatus string

const (
	StatusWantToWatch   ListStatus = "want_to_watch"
	StatusWatchingNow   ListStatus = "watching_now"
	StatusDoneWatching  ListStatus = "done_watching"
	StatusCompleteLater ListStatus = "complete_later"
	StatusDontWant      ListStatus = "dont_want"
)
