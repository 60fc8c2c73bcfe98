// Package pipeline dispatches optimistic edits. The caller applies the
// mutation to local state first, then hands the corresponding message here;
// the pipeline tracks which entities have unacknowledged edits in flight so
// the reconciler can avoid clobbering them, and retries once when the
// channel is down before warning the user.
package pipeline

import (
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/client/transport"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SyncWarning is the user-facing message when an edit could not be sent.
const SyncWarning = "changes may not be synchronized"

// Channel is the subset of the transport channel the pipeline uses.
type Channel interface {
	Send(models.Message)
	State() transport.State
}

// Notifier surfaces non-blocking user warnings. Presentation decides how.
type Notifier interface {
	Warn(message string)
}

// Config tunes pipeline retry behavior.
type Config struct {
	// RetryDelay is how long to wait before the single retry when the
	// channel is closed at dispatch time.
	RetryDelay time.Duration
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{RetryDelay: time.Second}
}

// Pipeline dispatches already-applied local edits toward the server.
type Pipeline struct {
	channel  Channel
	notifier Notifier
	clock    clockwork.Clock
	cfg      Config

	mu       sync.Mutex
	inflight map[string]time.Time
}

// New returns a pipeline bound to a channel and notifier.
func New(channel Channel, notifier Notifier, clock clockwork.Clock, cfg Config) *Pipeline {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	return &Pipeline{
		channel:  channel,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		inflight: make(map[string]time.Time),
	}
}

// Dispatch sends the message for an edit already applied locally. The entity
// key marks the edit in flight until an authoritative update covering it is
// observed. A second edit to the same entity does not block on the first;
// last-write-wins locally and server arrival order decides authoritatively.
//
// If the channel is closed, the send retries once after the configured delay
// and then surfaces a warning; it does not retry indefinitely.
func (p *Pipeline) Dispatch(entity string, msg models.Message) {
	p.mu.Lock()
	p.inflight[entity] = p.clock.Now()
	p.mu.Unlock()

	switch p.channel.State() {
	case transport.StateOpen, transport.StateConnecting:
		// Connecting is fine: the channel queues and flushes on open.
		p.channel.Send(msg)
	default:
		log.Warn().Str("type", string(msg.Type)).Msg("channel down, retrying edit once")
		go func() {
			<-p.clock.After(p.cfg.RetryDelay)
			switch p.channel.State() {
			case transport.StateOpen, transport.StateConnecting:
				p.channel.Send(msg)
			default:
				p.notifier.Warn(SyncWarning)
			}
		}()
	}
}

// InFlight reports whether an entity has an unacknowledged local edit.
func (p *Pipeline) InFlight(entity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[entity]
	return ok
}

// Ack clears the in-flight mark for one entity; called when an authoritative
// update covering it arrives.
func (p *Pipeline) Ack(entity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, entity)
}

// Reset clears all in-flight marks; called on full snapshot bootstrap and on
// room switch.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight = make(map[string]time.Time)
}
