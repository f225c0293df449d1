// Package mocks provides in-memory notification channels for testing.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/notify"
)

// Provisioner hands out in-memory channels and remembers them.
type Provisioner struct {
	mu       sync.Mutex
	channels []*Channel

	// OpenErr, when set, makes Open fail.
	OpenErr error
	// Drop discards every published event, simulating lost notifications.
	Drop bool
}

// NewProvisioner creates a provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

var _ notify.Provisioner = (*Provisioner)(nil)

func (p *Provisioner) Open(ctx context.Context, vault core.Vault) (notify.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	ch := &Channel{
		topic:  fmt.Sprintf("arn:aws:sns:%s:000000000000:glacier-%d", vault.Region, len(p.channels)+1),
		events: make(chan notify.Event, 16),
		drop:   p.Drop,
	}
	p.channels = append(p.channels, ch)
	return ch, nil
}

// Channels returns every channel opened so far.
func (p *Provisioner) Channels() []*Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Channel(nil), p.channels...)
}

// Last returns the most recently opened channel, or nil.
func (p *Provisioner) Last() *Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.channels) == 0 {
		return nil
	}
	return p.channels[len(p.channels)-1]
}

// OpenCount returns the number of channels not yet closed.
func (p *Provisioner) OpenCount() int {
	n := 0
	for _, ch := range p.Channels() {
		if !ch.Closed() {
			n++
		}
	}
	return n
}

// Channel is an in-memory notify.Channel.
type Channel struct {
	topic  string
	events chan notify.Event
	drop   bool

	mu       sync.Mutex
	closed   bool
	receives int

	// CloseErr, when set, is returned by the first Close call.
	CloseErr error
}

var _ notify.Channel = (*Channel)(nil)

func (c *Channel) TopicARN() string { return c.topic }

// Publish delivers an event unless the channel drops events.
func (c *Channel) Publish(ev notify.Event) {
	if c.drop {
		return
	}
	c.events <- ev
}

func (c *Channel) Receive(ctx context.Context, wait time.Duration) ([]notify.Event, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("receive on closed channel %s", c.topic)
	}
	c.receives++
	c.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ev := <-c.events:
		out := []notify.Event{ev}
		for {
			select {
			case more := <-c.events:
				out = append(out, more)
			default:
				return out, nil
			}
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CloseErr != nil {
		err := c.CloseErr
		c.CloseErr = nil
		return err
	}
	c.closed = true
	return nil
}

// Closed reports whether Close succeeded.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Receives returns how many Receive calls were made.
func (c *Channel) Receives() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receives
}
