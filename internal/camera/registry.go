package camera

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smazurov/camlink/internal/config"
)

// Dialer establishes one connection to a camera. Implementations must honor
// ctx for the whole handshake and return a live Conn or an error.
type Dialer func(ctx context.Context, cfg config.Camera) (Conn, error)

var (
	dialersMu sync.RWMutex
	dialers   = make(map[string]Dialer)
)

// Register makes a wire codec available under an address scheme. Codecs
// register from their package init, database/sql driver style, so the core
// never imports them directly.
func Register(scheme string, dial Dialer) {
	dialersMu.Lock()
	defer dialersMu.Unlock()
	if dial == nil {
		panic("camera: Register with nil dialer")
	}
	if _, dup := dialers[scheme]; dup {
		panic("camera: Register called twice for scheme " + scheme)
	}
	dialers[scheme] = dial
}

// Schemes lists the registered codec schemes, sorted.
func Schemes() []string {
	dialersMu.RLock()
	defer dialersMu.RUnlock()
	out := make([]string, 0, len(dialers))
	for s := range dialers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Dial connects to a camera using the codec selected by its address scheme.
func Dial(ctx context.Context, cfg config.Camera) (Conn, error) {
	scheme := cfg.Scheme()

	dialersMu.RLock()
	dial, ok := dialers[scheme]
	dialersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no wire codec registered for scheme %q (have %v)", scheme, Schemes())
	}
	return dial(ctx, cfg)
}
