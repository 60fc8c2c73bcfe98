// Package timersync keeps one room's shared countdown converged across
// clients. The wire representation is an absolute end-timestamp, never a
// relative countdown, so clock drift and delivery delay cannot skew the
// remaining time; the local tick interval exists purely for display
// smoothness and is never the source of truth.
package timersync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/board"
	"github.com/huddlekit/huddle/internal/client/reconcile"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrNoTaskInProgress rejects starting the timer when the board has nothing
// in the in-progress column. Rejected locally, nothing is sent.
var ErrNoTaskInProgress = errors.New("no task in progress")

// DefaultTotalSeconds is the nominal pomodoro duration.
const DefaultTotalSeconds = 1500

// TickInterval is the display refresh cadence.
const TickInterval = 250 * time.Millisecond

// Dispatcher sends an already-applied local timer edit toward the server.
type Dispatcher interface {
	Dispatch(entity string, msg models.Message)
}

// Entity is the in-flight key for timer edits.
const Entity = "timer"

// Timer is the room countdown state machine: Stopped or Running, with an
// absolute end-timestamp while running.
type Timer struct {
	mu    sync.Mutex
	state models.TimerState

	clock      clockwork.Clock
	dispatcher Dispatcher
	board      *board.Board
	room       func() string

	// completionFired guards the completion path so one run cannot
	// complete twice.
	completionFired bool

	// OnTick receives the derived remaining seconds every display tick.
	// OnComplete fires once per run when the countdown reaches zero
	// locally. Both are presentation hooks and may be nil.
	OnTick     func(remaining int)
	OnComplete func(done *models.Task)
}

// New returns a stopped timer with the default duration.
func New(clock clockwork.Clock, dispatcher Dispatcher, b *board.Board, room func() string) *Timer {
	return &Timer{
		state:      models.TimerState{TotalTime: DefaultTotalSeconds},
		clock:      clock,
		dispatcher: dispatcher,
		board:      b,
		room:       room,
	}
}

// Run drives display ticks until the context ends.
func (t *Timer) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.tick()
		}
	}
}

// Start transitions Stopped -> Running. Precondition: a task occupies the
// board's in-progress column. The new end-timestamp is now + duration,
// applied locally and broadcast with force-sync.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.board.TaskInProgress() == nil {
		t.mu.Unlock()
		return ErrNoTaskInProgress
	}
	end := t.clock.Now().Unix() + int64(t.state.TotalTime)
	t.state.IsRunning = true
	t.state.EndTime = &end
	t.completionFired = false
	msg := t.outboundLocked()
	t.mu.Unlock()

	log.Info().Int64("end_time", end).Msg("timer started")
	t.dispatcher.Dispatch(Entity, msg)
	return nil
}

// Stop transitions Running -> Stopped, clearing the end-timestamp with the
// broadcast.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.state.IsRunning {
		t.mu.Unlock()
		return
	}
	t.state.IsRunning = false
	t.state.EndTime = nil
	msg := t.outboundLocked()
	t.mu.Unlock()

	log.Info().Msg("timer stopped")
	t.dispatcher.Dispatch(Entity, msg)
}

// SetTotal changes the nominal duration for future runs.
func (t *Timer) SetTotal(seconds int) {
	if seconds <= 0 {
		return
	}
	t.mu.Lock()
	t.state.TotalTime = seconds
	t.mu.Unlock()
}

// Remaining derives the remaining seconds from the authoritative
// end-timestamp and the current wall clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.RemainingAt(t.clock.Now())
}

// State returns a copy of the current timer state.
func (t *Timer) State() models.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ApplyAuthoritative folds a server timer update into local state.
//
// Not-running declarations stop the timer without rebroadcast, with one
// exception: a stop arriving for a run whose end-timestamp has already passed
// is a completion that another participant noticed first, so the in-progress
// task is finished locally under the same once-guard as a local tick
// completion. Running updates replace the end-timestamp only when it is
// present and still in the future; a running update with a missing or expired
// end-timestamp triggers the self-healing repair path: fabricate now +
// duration and immediately rebroadcast with force-sync so the room converges
// on one value.
func (t *Timer) ApplyAuthoritative(state models.TimerState) {
	t.mu.Lock()
	now := t.clock.Now()

	if state.TotalTime > 0 {
		t.state.TotalTime = state.TotalTime
	}

	if !state.IsRunning {
		finished := t.state.IsRunning && t.state.EndTime != nil &&
			!t.completionFired && t.state.RemainingAt(now) == 0
		t.state.IsRunning = false
		t.state.EndTime = nil
		if !finished {
			t.mu.Unlock()
			return
		}

		// The run expired remotely before the local tick noticed. Finish the
		// board move here; the sender's own board update already carries the
		// move to the server, so nothing is dispatched.
		t.completionFired = true
		done := t.board.CompleteInProgress()
		onComplete := t.OnComplete
		t.mu.Unlock()

		log.Info().Msg("timer completed by remote stop")
		if onComplete != nil {
			onComplete(done)
		}
		return
	}

	if state.ValidEndTimeAt(now) {
		end := *state.EndTime
		if !t.state.IsRunning {
			t.completionFired = false
		}
		t.state.IsRunning = true
		t.state.EndTime = &end
		t.mu.Unlock()
		return
	}

	// Repair path: the server claims running but carries no usable
	// end-timestamp. Fabricate one and rebroadcast rather than drifting.
	end := now.Unix() + int64(t.state.TotalTime)
	t.state.IsRunning = true
	t.state.EndTime = &end
	t.completionFired = false
	msg := t.outboundLocked()
	t.mu.Unlock()

	log.Warn().Int64("end_time", end).Msg("repairing running timer without end timestamp")
	t.dispatcher.Dispatch(Entity, msg)
}

// tick recomputes the displayed remaining time and detects completion.
func (t *Timer) tick() {
	t.mu.Lock()
	if !t.state.IsRunning {
		t.mu.Unlock()
		return
	}
	remaining := t.state.RemainingAt(t.clock.Now())
	if remaining > 0 || t.completionFired {
		onTick := t.OnTick
		t.mu.Unlock()
		if onTick != nil {
			onTick(remaining)
		}
		return
	}

	// Completion: stop, move the in-progress task to done, broadcast the
	// stop with force-sync exactly once. The board move goes out as a
	// regular update so the room's authoritative board finishes the task
	// too, not just the local mirror.
	t.completionFired = true
	t.state.IsRunning = false
	t.state.EndTime = nil
	done := t.board.CompleteInProgress()
	msg := t.outboundLocked()
	onTick := t.OnTick
	onComplete := t.OnComplete
	t.mu.Unlock()

	log.Info().Msg("timer completed")
	t.dispatcher.Dispatch(Entity, msg)
	if done != nil {
		delta := models.BoardDelta{Op: models.BoardOpMove, TaskID: done.ID, Column: models.ColumnDone}
		t.dispatcher.Dispatch(reconcile.TaskEntity(done.ID), models.MustMessage(models.MessageUpdate, t.room(), delta))
	}
	if onTick != nil {
		onTick(0)
	}
	if onComplete != nil {
		onComplete(done)
	}
}

// outboundLocked builds the force-sync timer broadcast for the current
// state. Caller holds the mutex.
func (t *Timer) outboundLocked() models.Message {
	msg := models.MustMessage(models.MessageTimer, t.room(), t.state)
	msg.ForceSync = true
	return msg
}
