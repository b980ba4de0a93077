package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

type sentAlert struct {
	alert entity.Alert
	at    time.Time
}

type fakeChannel struct {
	name        string
	unavailable bool
	err         error

	mu   sync.Mutex
	sent []sentAlert
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{name: name}
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) IsAvailable() bool { return !c.unavailable }

func (c *fakeChannel) Send(_ context.Context, alert entity.Alert) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentAlert{alert: alert, at: time.Now()})
	return nil
}

func (c *fakeChannel) Sent() []sentAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentAlert(nil), c.sent...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
