package pipeline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nadzzz/voicegate/internal/metrics"
)

// ErrNoGreeting is returned when no greeting text is configured.
var ErrNoGreeting = errors.New("greeting disabled")

// Greeting synthesizes the session greeting once per process and shares the
// clip between sessions. Concurrent first callers collapse into one
// synthesis; failures are not cached.
type Greeting struct {
	text    string
	speak   func(context.Context, string) (Speech, error)
	metrics *metrics.Metrics

	group singleflight.Group

	mu     sync.RWMutex
	cached *Speech
}

// NewGreeting returns a cache that voices text with p.
func NewGreeting(text string, p *Processor) *Greeting {
	return &Greeting{text: text, speak: p.Speak, metrics: p.metrics}
}

// Get returns the cached greeting, synthesizing it on first use. The
// synthesis is detached from ctx so one caller's disconnect cannot fail
// the shared call; ctx still bounds how long this caller waits.
func (g *Greeting) Get(ctx context.Context) (Speech, error) {
	if g.text == "" {
		return Speech{}, ErrNoGreeting
	}

	g.mu.RLock()
	cached := g.cached
	g.mu.RUnlock()
	if cached != nil {
		g.metrics.RecordGreeting("hit")
		return *cached, nil
	}

	ch := g.group.DoChan("greeting", func() (any, error) {
		g.mu.RLock()
		c := g.cached
		g.mu.RUnlock()
		if c != nil {
			return *c, nil
		}

		s, err := g.speak(context.WithoutCancel(ctx), g.text)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.cached = &s
		g.mu.Unlock()
		return s, nil
	})

	select {
	case <-ctx.Done():
		return Speech{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			g.metrics.RecordGreeting("error")
			return Speech{}, res.Err
		}
		g.metrics.RecordGreeting("miss")
		return res.Val.(Speech), nil
	}
}
