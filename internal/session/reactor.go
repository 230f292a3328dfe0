package session

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/logging"
)

// Reactor manages one session per configured camera and reconciles the
// running set against configuration updates. Safe for concurrent use.
type Reactor struct {
	mu       sync.Mutex
	sessions map[string]*Session
	handles  map[string]Handle
	opts     []Option
	logger   *slog.Logger
}

// NewReactor creates an empty reactor. opts are applied to every session
// it starts.
func NewReactor(opts ...Option) *Reactor {
	return &Reactor{
		sessions: make(map[string]*Session),
		handles:  make(map[string]Handle),
		opts:     opts,
		logger:   logging.GetLogger("reactor"),
	}
}

// Apply reconciles the running sessions against cfg: new cameras are
// started, removed ones shut down, changed ones reconfigured in place.
// Cameras whose configuration is unchanged are left alone. A camera that
// fails to start is logged and skipped; the rest still apply.
func (r *Reactor) Apply(cfg config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		seen[cam.Name] = true
		if sess, ok := r.sessions[cam.Name]; ok {
			if sess.configTx.Load().Equal(cam) {
				continue
			}
			if err := sess.UpdateConfig(cam); err != nil {
				r.logger.Error("Failed to reconfigure camera", "camera", cam.Name, "error", err)
			}
			continue
		}
		sess, handle, err := New(cam, r.opts...)
		if err != nil {
			r.logger.Error("Failed to start camera session", "camera", cam.Name, "error", err)
			continue
		}
		r.sessions[cam.Name] = sess
		r.handles[cam.Name] = handle
		r.logger.Info("Camera session started", "camera", cam.Name)
	}

	for name, sess := range r.sessions {
		if seen[name] {
			continue
		}
		sess.Shutdown()
		delete(r.sessions, name)
		delete(r.handles, name)
		r.logger.Info("Camera session stopped", "camera", name)
	}
}

// Get returns a handle for the named camera.
func (r *Reactor) Get(name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[name]
	if !ok {
		return Handle{}, fmt.Errorf("camera %q: %w", name, ErrSessionClosed)
	}
	return h, nil
}

// Update reconfigures a single running camera.
func (r *Reactor) Update(cam config.Camera) error {
	r.mu.Lock()
	sess, ok := r.sessions[cam.Name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("camera %q: %w", cam.Name, ErrSessionClosed)
	}
	return sess.UpdateConfig(cam)
}

// Names returns the running camera names, sorted.
func (r *Reactor) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown stops every session and blocks until all have terminated.
func (r *Reactor) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.handles = make(map[string]Handle)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Shutdown()
		}(sess)
	}
	wg.Wait()
}
