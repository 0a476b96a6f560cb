package connectivity

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/guido-cesarano/tripsync/pkg/logger"
)

// Source abstracts the platform connectivity API. Check performs a one-shot
// query of the currently active technologies; Subscribe delivers every
// subsequent change until the subscription is cancelled.
//
// Implementations must deliver change notifications in the order they are
// observed and must not call onChange after Cancel returns.
type Source interface {
	Check(ctx context.Context) ([]Technology, error)
	Subscribe(onChange func([]Technology)) (Subscription, error)
}

// Subscription is a handle to an active change stream. Callers must Cancel
// it to release the underlying poller.
type Subscription interface {
	Cancel()
}

var _ Source = (*InterfaceSource)(nil)

// InterfaceSource is the default Source. Go has no push-style connectivity
// API, so it derives technology tags from net.Interfaces and polls for
// changes on a fixed interval. Push-capable platforms can plug in their own
// Source instead.
type InterfaceSource struct {
	interval time.Duration

	// interfaces is swappable for tests.
	interfaces func() ([]net.Interface, error)
}

// NewInterfaceSource creates a source polling every interval. A zero or
// negative interval falls back to 5 seconds.
func NewInterfaceSource(interval time.Duration) *InterfaceSource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &InterfaceSource{
		interval:   interval,
		interfaces: net.Interfaces,
	}
}

// Check returns the technologies of all interfaces that are up, excluding
// loopbacks. An empty machine state yields the single tag "none".
func (s *InterfaceSource) Check(ctx context.Context) ([]Technology, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ifaces, err := s.interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	seen := make(map[Technology]bool)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		seen[classifyInterface(iface.Name)] = true
	}

	if len(seen) == 0 {
		return []Technology{TechNone}, nil
	}

	tags := make([]Technology, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	// Stable order so pollers can compare snapshots cheaply.
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags, nil
}

// Subscribe starts a poller that invokes onChange whenever the tag set
// differs from the previous poll. The first differing poll after Subscribe
// is delivered; the state at subscribe time is not replayed.
func (s *InterfaceSource) Subscribe(onChange func([]Technology)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	last, err := s.Check(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &pollSubscription{cancel: cancel}
	sub.wg.Add(1)

	log := logger.With("connectivity")
	go func() {
		defer sub.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tags, err := s.Check(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Warn().Err(err).Msg("Connectivity poll failed")
					}
					continue
				}
				if !equalTags(tags, last) {
					last = tags
					onChange(tags)
				}
			}
		}
	}()

	return sub, nil
}

type pollSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Cancel stops the poller and waits for it to exit, guaranteeing no
// onChange call happens after Cancel returns.
func (p *pollSubscription) Cancel() {
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}

// classifyInterface maps a platform interface name to a technology tag.
// Naming conventions follow the predictable-interface-name schemes used by
// Linux and Darwin.
func classifyInterface(name string) Technology {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "wl"), strings.HasPrefix(n, "wifi"), strings.HasPrefix(n, "ath"):
		return TechWifi
	case strings.HasPrefix(n, "ww"), strings.HasPrefix(n, "rmnet"), strings.HasPrefix(n, "ccmni"):
		return TechCellular
	case strings.HasPrefix(n, "eth"), strings.HasPrefix(n, "en"), strings.HasPrefix(n, "em"):
		return TechEthernet
	case strings.HasPrefix(n, "bnep"), strings.HasPrefix(n, "bt"):
		return TechBluetooth
	case strings.HasPrefix(n, "tun"), strings.HasPrefix(n, "tap"), strings.HasPrefix(n, "wg"),
		strings.HasPrefix(n, "utun"), strings.HasPrefix(n, "ipsec"):
		return TechVPN
	default:
		return TechOther
	}
}

func equalTags(a, b []Technology) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
