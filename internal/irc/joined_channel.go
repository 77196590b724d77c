package irc

import (
	"sync"
	"time"
)

// JoinedChannel is the handle for a channel whose join the server confirmed
type JoinedChannel struct {
	Name     string
	JoinedAt time.Time

	mu                 sync.Mutex
	userState          map[string]string
	pendingBeforeState []string
}

func newJoinedChannel(name string) *JoinedChannel {
	return &JoinedChannel{
		Name:     name,
		JoinedAt: time.Now(),
	}
}

// HasUserState reports whether the server has sent our user state for this channel
func (c *JoinedChannel) HasUserState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userState != nil
}

// UserState returns a copy of the last user state tags (badges, mod, color...)
func (c *JoinedChannel) UserState() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]string, len(c.userState))
	for k, v := range c.userState {
		out[k] = v
	}
	return out
}

// AddPendingMessage remembers a body sent before the user state arrived
func (c *JoinedChannel) AddPendingMessage(body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingBeforeState = append(c.pendingBeforeState, body)
}

// PendingBeforeState returns the bodies sent before the user state arrived
func (c *JoinedChannel) PendingBeforeState() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.pendingBeforeState))
	copy(out, c.pendingBeforeState)
	return out
}

// MarkUserState stores tags as the current user state and returns, clearing,
// the bodies that were sent before any user state was known.
func (c *JoinedChannel) MarkUserState(tags map[string]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := make(map[string]string, len(tags))
	for k, v := range tags {
		state[k] = v
	}
	c.userState = state

	drained := c.pendingBeforeState
	c.pendingBeforeState = nil
	return drained
}
