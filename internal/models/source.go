package models

// Skip represents a skip interval with a start and end time, in seconds.
type Skip struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SubtitleTrack is a caption track attached to an episode source.
type SubtitleTrack struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	File  string `json:"file"`
}

// EpisodeSource is the resolved stream descriptor for one episode: the HLS
// master playlist plus caption tracks and intro/outro markers. It is never
// cached; every watch resolves it again.
type EpisodeSource struct {
	HLSURL string          `json:"hlsUrl"`
	Tracks []SubtitleTrack `json:"tracks"`
	Intro  *Skip           `json:"intro,omitempty"`
	Outro  *Skip           `json:"outro,omitempty"`
}

// Captions returns the caption tracks in upstream order, dropping thumbnail
// and chapter tracks.
func (s *EpisodeSource) Captions() []SubtitleTrack {
	var out []SubtitleTrack
	for _, t := range s.Tracks {
		if t.Kind == "captions" {
			out = append(out, t)
		}
	}
	return out
}
