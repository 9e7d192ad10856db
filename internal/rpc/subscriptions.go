package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/Klingon-tech/cspr-signer-kit/internal/devsigner"
	"github.com/Klingon-tech/cspr-signer-kit/internal/gateway"
	"github.com/Klingon-tech/cspr-signer-kit/internal/session"
	"github.com/google/uuid"
)

const (
	subscriptionBuffer = 256
	subscriptionIdle   = 5 * time.Minute
)

// subscription buffers provider events for one polling client.
type subscription struct {
	site    string
	release func()

	mu       sync.Mutex
	events   []session.RawEvent
	dropped  int
	lastPoll time.Time
}

func (s *subscription) push(ev session.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == subscriptionBuffer {
		s.events = s.events[1:]
		s.dropped++
	}
	s.events = append(s.events, ev)
}

func (s *subscription) take(max int, now time.Time) ([]session.RawEvent, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPoll = now
	n := len(s.events)
	if max > 0 && max < n {
		n = max
	}
	out := append([]session.RawEvent{}, s.events[:n]...)
	s.events = s.events[n:]
	dropped := s.dropped
	s.dropped = 0
	return out, dropped
}

func (s *subscription) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPoll
}

// subscriptions tracks open event subscriptions by id.
type subscriptions struct {
	provider gateway.Provider
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*subscription
}

func newSubscriptions(p gateway.Provider) *subscriptions {
	return &subscriptions{provider: p, now: time.Now, items: make(map[string]*subscription)}
}

// open subscribes to the provider on behalf of site. The subscription
// outlives the HTTP request that created it.
func (ss *subscriptions) open(site string) (string, error) {
	ss.sweep()

	ch, release, err := ss.provider.Subscribe(devsigner.WithSite(context.Background(), site))
	if err != nil {
		return "", err
	}
	sub := &subscription{site: site, release: release, lastPoll: ss.now()}
	go func() {
		for ev := range ch {
			sub.push(ev)
		}
	}()

	id := uuid.NewString()
	ss.mu.Lock()
	ss.items[id] = sub
	ss.mu.Unlock()
	return id, nil
}

// get returns the subscription if it exists and belongs to site.
func (ss *subscriptions) get(id, site string) (*subscription, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sub, ok := ss.items[id]
	if !ok || sub.site != site {
		return nil, false
	}
	return sub, true
}

func (ss *subscriptions) close(id, site string) bool {
	ss.mu.Lock()
	sub, ok := ss.items[id]
	if ok && sub.site == site {
		delete(ss.items, id)
	}
	ss.mu.Unlock()
	if !ok || sub.site != site {
		return false
	}
	sub.release()
	return true
}

// sweep releases subscriptions nobody has polled recently.
func (ss *subscriptions) sweep() {
	cutoff := ss.now().Add(-subscriptionIdle)
	var stale []*subscription

	ss.mu.Lock()
	for id, sub := range ss.items {
		if sub.idleSince().Before(cutoff) {
			stale = append(stale, sub)
			delete(ss.items, id)
		}
	}
	ss.mu.Unlock()

	for _, sub := range stale {
		sub.release()
	}
}

func (ss *subscriptions) closeAll() {
	ss.mu.Lock()
	items := ss.items
	ss.items = make(map[string]*subscription)
	ss.mu.Unlock()
	for _, sub := range items {
		sub.release()
	}
}
