// Package client assembles the synchronization core for one browser-tab
// equivalent: a transport channel, room registry, snapshot reconciler,
// optimistic edit pipeline, timer synchronization, and the widget stores
// they operate on. The session is the single root coordinator that owns
// their lifecycles; nothing here is ambient global state.
package client

import (
	"context"

	"github.com/huddlekit/huddle/internal/badge"
	"github.com/huddlekit/huddle/internal/board"
	"github.com/huddlekit/huddle/internal/client/pipeline"
	"github.com/huddlekit/huddle/internal/client/reconcile"
	"github.com/huddlekit/huddle/internal/client/rooms"
	"github.com/huddlekit/huddle/internal/client/timersync"
	"github.com/huddlekit/huddle/internal/client/transport"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/huddlekit/huddle/internal/rps"
	"github.com/huddlekit/huddle/internal/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Notifier is the presentation surface for user-facing conditions. Warn is a
// non-blocking indicator; Block demands acknowledgment before the user can
// continue (reconnect exhausted, forced redirect); Status drives the
// connection indicator.
type Notifier interface {
	Warn(message string)
	Block(message string)
	Status(connected bool)
}

// Config assembles a session.
type Config struct {
	// Endpoint is the websocket URL of the huddle server, e.g.
	// ws://localhost:8080/ws.
	Endpoint string
	// Room to join initially; empty means the default room.
	Room string
	// TimerTotalSeconds overrides the nominal pomodoro duration.
	TimerTotalSeconds int

	Clock    clockwork.Clock
	Dialer   transport.Dialer
	Renderer reconcile.Renderer
	Notifier Notifier

	Channel    transport.Config
	Pipeline   pipeline.Config
	Reconciler reconcile.Config
}

// Session owns one client's synchronization core.
type Session struct {
	channel    *transport.Channel
	registry   *rooms.Registry
	pipe       *pipeline.Pipeline
	reconciler *reconcile.Reconciler
	timer      *timersync.Timer
	board      *board.Board
	flow       *workflow.Workflow
	match      *rps.Match
	badges     *badge.Client
	notifier   Notifier
	initial    string
}

// New constructs a session. Nothing connects until Run.
func New(cfg Config) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = transport.WebsocketDialer{}
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	channel := transport.New(cfg.Endpoint, dialer, clock, cfg.Channel)
	registry := rooms.New(channel)
	pipe := pipeline.New(channel, notifier, clock, cfg.Pipeline)
	b := board.New()
	flow := workflow.New(clock)
	match := rps.New(channel, registry.Active)
	timer := timersync.New(clock, pipe, b, registry.Active)
	if cfg.TimerTotalSeconds > 0 {
		timer.SetTotal(cfg.TimerTotalSeconds)
	}
	reconciler := reconcile.New(clock, cfg.Reconciler, b, timer, flow, match, pipe, cfg.Renderer, registry.Active)

	return &Session{
		channel:    channel,
		registry:   registry,
		pipe:       pipe,
		reconciler: reconciler,
		timer:      timer,
		board:      b,
		flow:       flow,
		match:      match,
		badges:     badge.New(channel, notifier),
		notifier:   notifier,
		initial:    cfg.Room,
	}
}

// Run connects and processes events until the context ends.
func (s *Session) Run(ctx context.Context) {
	if s.initial != "" && s.initial != s.registry.Active() {
		// SwitchRoom opens the channel itself.
		s.registry.SwitchRoom(ctx, s.initial)
	} else {
		s.channel.Open(ctx, s.registry.Active())
	}

	go s.timer.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			s.channel.Close()
			return
		case ev := <-s.channel.Events():
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		s.notifier.Status(true)
		// Bootstrap: learn the room list, then ask for a fresh snapshot of
		// the room this connection is scoped to.
		s.channel.Send(models.Message{Type: models.MessageGetRooms})
		s.channel.Send(models.MustMessage(models.MessageReloadStateRequest, ev.Room, models.RoomRefPayload{Room: ev.Room}))

	case transport.EventDisconnected:
		s.notifier.Status(false)

	case transport.EventReconnectFailed:
		s.notifier.Block("connection lost and could not be re-established; reload or switch rooms to retry")

	case transport.EventMessage:
		s.handleMessage(ctx, *ev.Message)
	}
}

func (s *Session) handleMessage(ctx context.Context, msg models.Message) {
	switch msg.Type {
	case models.MessageRooms:
		payload, err := models.DecodePayload(msg)
		if err != nil {
			log.Error().Err(err).Msg("bad rooms message")
			return
		}
		s.registry.UpdateAvailable(ctx, payload.(models.RoomsPayload).Rooms)

	case models.MessageRoomDeleted:
		payload, err := models.DecodePayload(msg)
		if err != nil {
			log.Error().Err(err).Msg("bad room_deleted message")
			return
		}
		deleted := payload.(models.RoomRefPayload).Room
		if deleted == s.registry.Active() {
			s.notifier.Block("this room was deleted; returning to the default room")
			s.pipe.Reset()
			s.registry.SwitchRoom(ctx, rooms.DefaultRoom)
		}
		s.channel.Send(models.Message{Type: models.MessageGetRooms})

	case models.MessageRedirectToDefault:
		payload, err := models.DecodePayload(msg)
		if err != nil {
			log.Error().Err(err).Msg("bad redirect message")
			return
		}
		s.notifier.Block(payload.(models.RedirectPayload).Message)
		s.pipe.Reset()
		s.registry.SwitchRoom(ctx, rooms.DefaultRoom)

	case models.MessageBadgeUpdateResponse:
		payload, err := models.DecodePayload(msg)
		if err != nil {
			log.Error().Err(err).Msg("bad badge response")
			return
		}
		s.badges.HandleResponse(payload.(models.BadgeResponsePayload))

	case models.MessageFullUpdate, models.MessageUpdate, models.MessageTimer,
		models.MessageWorkflowUpdate, models.MessageRPSUpdate:
		if err := s.reconciler.Apply(msg); err != nil {
			log.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to reconcile update")
		}

	default:
		log.Debug().Str("type", string(msg.Type)).Msg("ignoring message")
	}
}

// SwitchRoom cuts over to another room; local widget state is rebuilt from
// the new room's snapshot.
func (s *Session) SwitchRoom(ctx context.Context, room string) {
	s.pipe.Reset()
	s.registry.SwitchRoom(ctx, room)
}

// DeleteRoom requests server-side deletion of a room. The default room is
// rejected locally.
func (s *Session) DeleteRoom(room string) error {
	return s.registry.RequestDelete(room)
}

// AddTask creates a board task optimistically and dispatches the add.
func (s *Session) AddTask(title, detail string) models.Task {
	task := s.board.AddTask(title, detail)
	s.dispatchDelta(reconcile.TaskEntity(task.ID), models.BoardDelta{Op: models.BoardOpAdd, Task: &task})
	return task
}

// MoveTask moves a board task optimistically and dispatches the move.
// Invalid moves (second in-progress occupant, unknown task) are rejected
// before anything is sent.
func (s *Session) MoveTask(id int, column models.ColumnID) error {
	if err := s.board.MoveTask(id, column); err != nil {
		return err
	}
	s.dispatchDelta(reconcile.TaskEntity(id), models.BoardDelta{Op: models.BoardOpMove, TaskID: id, Column: column})
	return nil
}

// EditTask edits a task's text optimistically and dispatches the edit.
func (s *Session) EditTask(id int, title, detail string) error {
	if err := s.board.EditTask(id, title, detail); err != nil {
		return err
	}
	task := s.board.Task(id)
	s.dispatchDelta(reconcile.TaskEntity(id), models.BoardDelta{Op: models.BoardOpEdit, Task: task})
	return nil
}

// TrashTask drags a task to the trash-pending column.
func (s *Session) TrashTask(id int) error {
	return s.MoveTask(id, models.ColumnTrash)
}

// DeleteTask removes a trashed task for good.
func (s *Session) DeleteTask(id int) error {
	if err := s.board.DeleteTask(id); err != nil {
		return err
	}
	s.dispatchDelta(reconcile.TaskEntity(id), models.BoardDelta{Op: models.BoardOpRemove, TaskID: id})
	return nil
}

// StartTimer starts the shared countdown; fails if nothing is in progress.
func (s *Session) StartTimer() error {
	return s.timer.Start()
}

// StopTimer stops the shared countdown.
func (s *Session) StopTimer() {
	s.timer.Stop()
}

// TransitionWorkItem moves a work item along a workflow edge and pushes the
// workflow snapshot.
func (s *Session) TransitionWorkItem(itemID int, toStateID string) error {
	if err := s.flow.Transition(itemID, toStateID); err != nil {
		return err
	}
	s.dispatchWorkflow()
	return nil
}

// AddWorkItem creates a work item and pushes the workflow snapshot.
func (s *Session) AddWorkItem(title, notes, stateID string) (models.WorkItem, error) {
	item, err := s.flow.AddItem(title, notes, stateID)
	if err != nil {
		return models.WorkItem{}, err
	}
	s.dispatchWorkflow()
	return item, nil
}

// Board exposes the board store for reads and presentation.
func (s *Session) Board() *board.Board { return s.board }

// Workflow exposes the workflow store.
func (s *Session) Workflow() *workflow.Workflow { return s.flow }

// Timer exposes the timer state machine.
func (s *Session) Timer() *timersync.Timer { return s.timer }

// Match exposes the rock-paper-scissors mirror.
func (s *Session) Match() *rps.Match { return s.match }

// Badges exposes the badge client.
func (s *Session) Badges() *badge.Client { return s.badges }

// Rooms exposes the room registry.
func (s *Session) Rooms() *rooms.Registry { return s.registry }

// Reconciler exposes the reconciler for view and busy-flag registration.
func (s *Session) Reconciler() *reconcile.Reconciler { return s.reconciler }

func (s *Session) dispatchDelta(entity string, d models.BoardDelta) {
	s.pipe.Dispatch(entity, models.MustMessage(models.MessageUpdate, s.registry.Active(), d))
}

func (s *Session) dispatchWorkflow() {
	graph, items := s.flow.Snapshot()
	payload := models.WorkflowUpdatePayload{Workflow: graph, WorkItems: items}
	s.pipe.Dispatch(reconcile.WorkflowEntity, models.MustMessage(models.MessageWorkflowUpdate, s.registry.Active(), payload))
}

type nopNotifier struct{}

func (nopNotifier) Warn(string)  {}
func (nopNotifier) Block(string) {}
func (nopNotifier) Status(bool)  {}
