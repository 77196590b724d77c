package irc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/output"
	"golang.org/x/time/rate"
)

// DefaultJoinInterval is the server's own pace for JOIN commands
const DefaultJoinInterval = time.Second

// ErrAlreadyStarted is returned by Start when the pacing worker is running
var ErrAlreadyStarted = errors.NewPreconditionError("channel manager already started")

// ChannelStore persists the set of channels to auto-join
type ChannelStore interface {
	SaveChannel(name string) error
	DeleteChannel(name string) error
	ListChannels() ([]string, error)
}

// NormalizeChannel lowercases name and strips surrounding space and a leading '#'
func NormalizeChannel(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "#")
	return strings.ToLower(strings.TrimSpace(name))
}

// ChannelManager tracks which channels we want, which joins are queued or
// awaiting confirmation, and which are confirmed. A background worker sends
// queued JOINs one per interval.
//
// A name is in at most one of pending, requested or joined at a time.
// Leaving a channel whose join is still queued or unconfirmed records a join
// exception instead of sending PART, so the stale join is dropped later.
type ChannelManager struct {
	transport Transport
	logger    output.Logger
	store     ChannelStore
	interval  time.Duration

	mu         sync.Mutex
	desired    map[string]struct{}
	queue      []string
	pending    map[string]struct{}
	requested  map[string]struct{}
	exceptions map[string]struct{}
	joined     map[string]*JoinedChannel
	wake       chan struct{}

	hooksMu     sync.RWMutex
	onJoinSent  []func(string)
	onCompleted []func(*JoinedChannel)
	onCanceled  []func(string)
	onJoinError []func(string, error)

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannelManager creates a channel manager sending through transport.
// interval <= 0 uses DefaultJoinInterval; store may be nil.
func NewChannelManager(transport Transport, logger output.Logger, store ChannelStore, interval time.Duration) *ChannelManager {
	if logger == nil {
		logger = output.NopLogger{}
	}
	if interval <= 0 {
		interval = DefaultJoinInterval
	}
	return &ChannelManager{
		transport:  transport,
		logger:     logger,
		store:      store,
		interval:   interval,
		desired:    make(map[string]struct{}),
		pending:    make(map[string]struct{}),
		requested:  make(map[string]struct{}),
		exceptions: make(map[string]struct{}),
		joined:     make(map[string]*JoinedChannel),
		wake:       make(chan struct{}, 1),
	}
}

// LoadDesired adds the stored channels to the desired set without queueing
// them. They are queued by the next Start.
func (cm *ChannelManager) LoadDesired() error {
	if cm.store == nil {
		return nil
	}

	names, err := cm.store.ListChannels()
	if err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, name := range names {
		if n := NormalizeChannel(name); n != "" {
			cm.desired[n] = struct{}{}
		}
	}
	cm.logger.Info("Loaded %d saved channels", len(names))
	return nil
}

// JoinChannel asks for name to be joined. It is a no-op for empty names and
// channels already joined, queued or awaiting confirmation.
func (cm *ChannelManager) JoinChannel(name string) {
	n := NormalizeChannel(name)
	if n == "" {
		return
	}

	cm.mu.Lock()
	if _, ok := cm.joined[n]; ok {
		cm.mu.Unlock()
		return
	}
	_, known := cm.desired[n]
	cm.desired[n] = struct{}{}
	queued := cm.enqueueLocked(n)
	cm.mu.Unlock()

	if !known {
		cm.persist(n, true)
	}
	if queued {
		cm.signal()
	}
}

// JoinChannels calls JoinChannel for each name
func (cm *ChannelManager) JoinChannels(names []string) {
	for _, name := range names {
		cm.JoinChannel(name)
	}
}

// enqueueLocked queues n unless it is already in flight. A rejoin clears any
// exception left by an earlier leave.
func (cm *ChannelManager) enqueueLocked(n string) bool {
	if _, ok := cm.pending[n]; ok {
		return false
	}
	if _, ok := cm.requested[n]; ok {
		return false
	}
	delete(cm.exceptions, n)
	cm.pending[n] = struct{}{}
	cm.queue = append(cm.queue, n)
	return true
}

// LeaveChannel stops wanting name. A joined channel is parted; a queued or
// unconfirmed join is turned into a join exception and nothing is sent.
func (cm *ChannelManager) LeaveChannel(name string) {
	n := NormalizeChannel(name)
	if n == "" {
		return
	}

	cm.mu.Lock()
	_, wanted := cm.desired[n]
	delete(cm.desired, n)

	part := false
	if _, ok := cm.joined[n]; ok {
		delete(cm.joined, n)
		part = true
	} else if _, ok := cm.pending[n]; ok {
		delete(cm.pending, n)
		cm.exceptions[n] = struct{}{}
	} else if _, ok := cm.requested[n]; ok {
		delete(cm.requested, n)
		cm.exceptions[n] = struct{}{}
	}
	cm.mu.Unlock()

	if wanted {
		cm.persist(n, false)
	}
	if part {
		cm.logger.Info("Leaving channel: #%s", n)
		cm.transport.Send("PART #" + n)
	}
}

// LeaveJoinedChannel leaves the channel behind a handle
func (cm *ChannelManager) LeaveJoinedChannel(ch *JoinedChannel) {
	if ch == nil {
		return
	}
	cm.LeaveChannel(ch.Name)
}

// JoinCompleted moves name from requested to joined. It does nothing when
// name is not awaiting confirmation, and consumes a pending join exception.
func (cm *ChannelManager) JoinCompleted(name string) *JoinedChannel {
	n := NormalizeChannel(name)

	cm.mu.Lock()
	if _, ok := cm.exceptions[n]; ok {
		delete(cm.exceptions, n)
		cm.mu.Unlock()
		return nil
	}
	if _, ok := cm.requested[n]; !ok {
		cm.mu.Unlock()
		return nil
	}
	delete(cm.requested, n)
	ch := newJoinedChannel(n)
	cm.joined[n] = ch
	cm.mu.Unlock()

	cm.logger.Success("Joined channel: #%s", n)

	cm.hooksMu.RLock()
	hooks := cm.onCompleted
	cm.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ch)
	}
	return ch
}

// JoinCanceled drops name from requested and clears its join exception.
// Joined channels are left alone.
func (cm *ChannelManager) JoinCanceled(name string) {
	n := NormalizeChannel(name)

	cm.mu.Lock()
	_, wasRequested := cm.requested[n]
	cm.joinCanceledLocked(n)
	cm.mu.Unlock()

	if !wasRequested {
		return
	}
	cm.logger.Warning("Join refused: #%s", n)

	cm.hooksMu.RLock()
	hooks := cm.onCanceled
	cm.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(n)
	}
}

func (cm *ChannelManager) joinCanceledLocked(n string) {
	delete(cm.requested, n)
	delete(cm.exceptions, n)
}

// PartCompleted forgets a joined channel the server says we are no longer in.
// The desired set is untouched so a later Start rejoins it.
func (cm *ChannelManager) PartCompleted(name string) {
	n := NormalizeChannel(name)

	cm.mu.Lock()
	_, ok := cm.joined[n]
	delete(cm.joined, n)
	cm.mu.Unlock()

	if ok {
		cm.logger.Info("Left channel: #%s", n)
	}
}

// GetJoinedChannel returns the handle for a joined channel, or nil
func (cm *ChannelManager) GetJoinedChannel(name string) *JoinedChannel {
	n := NormalizeChannel(name)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.joined[n]
}

// JoinedChannels returns a snapshot of joined channel handles sorted by name
func (cm *ChannelManager) JoinedChannels() []*JoinedChannel {
	cm.mu.Lock()
	channels := make([]*JoinedChannel, 0, len(cm.joined))
	for _, ch := range cm.joined {
		channels = append(channels, ch)
	}
	cm.mu.Unlock()

	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels
}

// DesiredChannels returns the sorted set of channels to auto-join
func (cm *ChannelManager) DesiredChannels() []string {
	cm.mu.Lock()
	names := make([]string, 0, len(cm.desired))
	for n := range cm.desired {
		names = append(names, n)
	}
	cm.mu.Unlock()

	sort.Strings(names)
	return names
}

// IsPending reports whether a JOIN for name is queued but not yet sent
func (cm *ChannelManager) IsPending(name string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, ok := cm.pending[NormalizeChannel(name)]
	return ok
}

// IsRequested reports whether a JOIN for name was sent and awaits confirmation
func (cm *ChannelManager) IsRequested(name string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	_, ok := cm.requested[NormalizeChannel(name)]
	return ok
}

// OnJoinSent registers fn to be called after each JOIN is sent
func (cm *ChannelManager) OnJoinSent(fn func(channel string)) {
	cm.hooksMu.Lock()
	defer cm.hooksMu.Unlock()
	cm.onJoinSent = append(cm.onJoinSent, fn)
}

// OnJoinCompleted registers fn to be called when a join is confirmed
func (cm *ChannelManager) OnJoinCompleted(fn func(*JoinedChannel)) {
	cm.hooksMu.Lock()
	defer cm.hooksMu.Unlock()
	cm.onCompleted = append(cm.onCompleted, fn)
}

// OnJoinCanceled registers fn to be called when the server refuses a requested join
func (cm *ChannelManager) OnJoinCanceled(fn func(channel string)) {
	cm.hooksMu.Lock()
	defer cm.hooksMu.Unlock()
	cm.onCanceled = append(cm.onCanceled, fn)
}

// OnJoinError registers fn to be called when a JOIN could not be written.
// err is a Transport ClientError.
func (cm *ChannelManager) OnJoinError(fn func(channel string, err error)) {
	cm.hooksMu.Lock()
	defer cm.hooksMu.Unlock()
	cm.onJoinError = append(cm.onJoinError, fn)
}

// Start queues every desired channel and runs the pacing worker until ctx is
// done or Stop is called. It returns ErrAlreadyStarted if already running.
func (cm *ChannelManager) Start(ctx context.Context) error {
	cm.runMu.Lock()
	defer cm.runMu.Unlock()

	if cm.cancel != nil {
		return ErrAlreadyStarted
	}

	cm.mu.Lock()
	desired := make([]string, 0, len(cm.desired))
	for n := range cm.desired {
		desired = append(desired, n)
	}
	sort.Strings(desired)
	for _, n := range desired {
		if _, ok := cm.joined[n]; !ok {
			cm.enqueueLocked(n)
		}
	}
	cm.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	cm.cancel = cancel
	cm.done = done

	go cm.run(runCtx, done)
	cm.signal()
	return nil
}

// Stop stops the pacing worker and forgets every queued, requested and joined
// channel. The desired set is kept for the next Start. Safe to call when not started.
func (cm *ChannelManager) Stop() {
	cm.runMu.Lock()
	defer cm.runMu.Unlock()

	if cm.cancel != nil {
		cm.cancel()
		<-cm.done
		cm.cancel = nil
		cm.done = nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.queue = nil
	cm.pending = make(map[string]struct{})
	cm.requested = make(map[string]struct{})
	cm.exceptions = make(map[string]struct{})
	cm.joined = make(map[string]*JoinedChannel)

	// Drain a stale wake-up so the next worker starts idle.
	select {
	case <-cm.wake:
	default:
	}
}

// signal wakes an idle worker without blocking
func (cm *ChannelManager) signal() {
	select {
	case cm.wake <- struct{}{}:
	default:
	}
}

func (cm *ChannelManager) hasQueued() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.queue) > 0
}

// run is the pacing worker. It sleeps on the wake channel while the queue is
// empty and otherwise processes one queued name per interval.
func (cm *ChannelManager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Every(cm.interval), 1)

	for {
		if !cm.hasQueued() {
			select {
			case <-ctx.Done():
				return
			case <-cm.wake:
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		cm.processNext()
	}
}

// processNext pops one queued name and sends its JOIN unless the join was
// canceled while queued.
func (cm *ChannelManager) processNext() {
	cm.mu.Lock()
	if len(cm.queue) == 0 {
		cm.mu.Unlock()
		return
	}
	n := cm.queue[0]
	cm.queue = cm.queue[1:]

	if _, ok := cm.pending[n]; !ok {
		// Left while queued, or a duplicate of an entry already sent.
		if _, ok := cm.exceptions[n]; ok {
			cm.joinCanceledLocked(n)
			cm.mu.Unlock()
			cm.logger.Info("Skipped join for #%s: left before it was sent", n)
			return
		}
		cm.mu.Unlock()
		return
	}

	delete(cm.pending, n)
	cm.requested[n] = struct{}{}
	cm.mu.Unlock()

	cm.logger.Info("Joining channel: #%s", n)
	if err := cm.sendJoin(n); err != nil {
		cm.logger.Error("Failed to send JOIN for #%s: %v", n, err)
		cm.hooksMu.RLock()
		hooks := cm.onJoinError
		cm.hooksMu.RUnlock()
		for _, fn := range hooks {
			fn(n, err)
		}
		return
	}

	cm.hooksMu.RLock()
	hooks := cm.onJoinSent
	cm.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(n)
	}
}

// sendJoin writes the JOIN for n. A panic in the transport is returned as an
// error so the worker keeps running. The name stays requested either way.
func (cm *ChannelManager) sendJoin(n string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewTransportError("join", fmt.Errorf("panic: %v", r))
		}
	}()

	if !cm.transport.Send("JOIN #" + n) {
		return errors.NewTransportError("join", errors.New("connection refused the line"))
	}
	return nil
}

func (cm *ChannelManager) persist(n string, save bool) {
	if cm.store == nil {
		return
	}

	var err error
	if save {
		err = cm.store.SaveChannel(n)
	} else {
		err = cm.store.DeleteChannel(n)
	}
	if err != nil {
		cm.logger.Error("Failed to update saved channel #%s: %v", n, err)
	}
}
