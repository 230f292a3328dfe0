package session

import (
	"context"
	"errors"
	"time"

	"github.com/smazurov/camlink/internal/broadcast"
	"github.com/smazurov/camlink/internal/camera"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/metrics"
)

// Subscription delivers media frames for one track to one consumer. It
// stays valid across reconnects; frames simply pause while the camera is
// away. Not safe for concurrent use, open one per consumer.
type Subscription struct {
	camera string
	track  camera.Track
	rx     *broadcast.Receiver[camera.Frame]
	bus    *events.Bus
}

// Track returns the media track this subscription carries.
func (s *Subscription) Track() camera.Track {
	return s.track
}

// Recv returns the next frame, blocking until one arrives, the track is
// closed, or ctx is done. A strict subscription that fell behind gets
// broadcast.ErrLagged exactly once and then resumes from the oldest
// retained frame; a lossy one skips the gap silently.
func (s *Subscription) Recv(ctx context.Context) (camera.Frame, error) {
	fr, err := s.rx.Recv(ctx)
	if err != nil {
		var lag *broadcast.LagError
		if errors.As(err, &lag) {
			metrics.SubscriberLag.WithLabelValues(s.camera, s.track.String()).Add(float64(lag.Missed))
			if s.bus != nil {
				s.bus.Publish(events.SubscriberLagEvent{
					Camera:    s.camera,
					Track:     s.track.String(),
					Missed:    lag.Missed,
					Timestamp: time.Now(),
				})
			}
		}
	}
	return fr, err
}

// Pending reports how many frames are buffered and not yet received.
func (s *Subscription) Pending() int {
	return s.rx.Pending()
}
