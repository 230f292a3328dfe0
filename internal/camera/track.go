package camera

import "fmt"

// Track identifies one media stream component of a camera.
type Track uint8

const (
	// TrackMain is the primary (high quality) video stream.
	TrackMain Track = iota
	// TrackSub is the secondary (low quality) video stream.
	TrackSub
	// TrackExtern is the auxiliary video stream some cameras expose.
	TrackExtern
	// TrackAudio is the audio stream.
	TrackAudio
)

// Tracks lists all known tracks.
var Tracks = []Track{TrackMain, TrackSub, TrackExtern, TrackAudio}

func (t Track) String() string {
	switch t {
	case TrackMain:
		return "main"
	case TrackSub:
		return "sub"
	case TrackExtern:
		return "extern"
	case TrackAudio:
		return "audio"
	default:
		return fmt.Sprintf("track(%d)", uint8(t))
	}
}

// ParseTrack converts a track name to its Track value.
func ParseTrack(s string) (Track, error) {
	for _, t := range Tracks {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown track %q", s)
}
