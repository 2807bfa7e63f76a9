package controller

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"leadpilot/engine"
)

// TickFeed fans orchestrator tick summaries out to websocket subscribers.
// Slow consumers get dropped rather than blocking the orchestrator.
type TickFeed struct {
	mu     sync.Mutex
	subs   map[chan engine.TickSummary]struct{}
	logger *logrus.Entry
}

func NewTickFeed(logger *logrus.Entry) *TickFeed {
	return &TickFeed{
		subs:   make(map[chan engine.TickSummary]struct{}),
		logger: logger,
	}
}

// Publish is wired as the orchestrator's OnTick callback.
func (f *TickFeed) Publish(summary engine.TickSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- summary:
		default:
			// Subscriber is not keeping up; skip this update for it.
		}
	}
}

func (f *TickFeed) subscribe() chan engine.TickSummary {
	ch := make(chan engine.TickSummary, 4)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *TickFeed) unsubscribe(ch chan engine.TickSummary) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

// HandleTickFeedWS streams every tick summary to the client until it
// disconnects.
func (f *TickFeed) HandleTickFeedWS(c *websocket.Conn) {
	defer c.Close()

	ch := f.subscribe()
	defer f.unsubscribe(ch)

	// Drain client reads so close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case summary := <-ch:
			if err := c.WriteJSON(summary); err != nil {
				f.logger.Debugf("tick feed write failed: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
