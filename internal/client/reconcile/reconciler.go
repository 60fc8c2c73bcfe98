// Package reconcile applies authoritative server state to the local widgets.
// Full snapshots replace a widget's state wholesale; incremental updates
// merge field-level changes and re-derive display values. Two hazards shape
// the logic: never clobber a local edit still in flight, and never tear down
// a visualization mid-interaction. Updates arriving while a visualization
// is busy are deferred, not dropped.
package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/board"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/huddlekit/huddle/internal/rps"
	"github.com/huddlekit/huddle/internal/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// View identifies which widget surface is currently visible. The reconciler
// re-renders only the visible view after applying an update.
type View int

const (
	ViewList View = iota
	ViewDetail
	ViewConfig
)

// Renderer is the thin presentation adapter. Render is called with the view
// to refresh; everything about how it is drawn lives outside the core.
type Renderer interface {
	Render(view View)
}

// BusyChecker reports whether a visualization is mid-interaction (a drag in
// progress, an open modal). Registered per active visualization.
type BusyChecker interface {
	Busy() bool
}

// InFlightTracker is the pipeline surface the reconciler consults to avoid
// clobbering unacknowledged local edits.
type InFlightTracker interface {
	InFlight(entity string) bool
	Ack(entity string)
	Reset()
}

// TimerAuthority receives authoritative timer state.
type TimerAuthority interface {
	ApplyAuthoritative(models.TimerState)
}

// TaskEntity is the in-flight key for a board task.
func TaskEntity(id int) string {
	return fmt.Sprintf("task:%d", id)
}

// WorkflowEntity is the in-flight key for workflow snapshot pushes.
const WorkflowEntity = "workflow"

// Config tunes deferral behavior.
type Config struct {
	// DeferDelay is how long a deferred update waits before retrying.
	DeferDelay time.Duration
	// MaxDefers caps consecutive deferrals of one update; past the cap the
	// busy flag is treated as stale and the update applies anyway.
	MaxDefers int
}

// DefaultConfig returns the standard deferral tuning.
func DefaultConfig() Config {
	return Config{
		DeferDelay: 500 * time.Millisecond,
		MaxDefers:  20,
	}
}

// Reconciler merges authoritative room state into the local widgets.
type Reconciler struct {
	clock    clockwork.Clock
	cfg      Config
	board    *board.Board
	timer    TimerAuthority
	flow     *workflow.Workflow
	match    *rps.Match
	pipeline InFlightTracker
	renderer Renderer
	room     func() string

	mu         sync.Mutex
	busy       []BusyChecker
	view       View
	detailItem int
}

// New wires a reconciler to the widget stores it writes. room returns the
// active room for the partition filter; renderer may be nil in headless use.
func New(
	clock clockwork.Clock,
	cfg Config,
	b *board.Board,
	timer TimerAuthority,
	flow *workflow.Workflow,
	match *rps.Match,
	pipeline InFlightTracker,
	renderer Renderer,
	room func() string,
) *Reconciler {
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = DefaultConfig().DeferDelay
	}
	if cfg.MaxDefers <= 0 {
		cfg.MaxDefers = DefaultConfig().MaxDefers
	}
	return &Reconciler{
		clock:    clock,
		cfg:      cfg,
		board:    b,
		timer:    timer,
		flow:     flow,
		match:    match,
		pipeline: pipeline,
		renderer: renderer,
		room:     room,
	}
}

// RegisterBusy adds a visualization busy flag the reconciler must respect.
func (r *Reconciler) RegisterBusy(b BusyChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, b)
}

// SetView records which surface is visible, and for the detail view, which
// work item it shows.
func (r *Reconciler) SetView(v View, detailItem int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view = v
	r.detailItem = detailItem
}

// CurrentView returns the visible surface.
func (r *Reconciler) CurrentView() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// Apply merges one inbound message. Messages tagged for a room other than
// the active one are dropped without side effects. Updates arriving while a
// visualization is busy are re-scheduled rather than discarded.
func (r *Reconciler) Apply(msg models.Message) error {
	return r.apply(msg, 0)
}

func (r *Reconciler) apply(msg models.Message, defers int) error {
	// Strict room partitioning: a client never applies another room's state.
	if msg.Room != "" && msg.Room != r.room() {
		log.Debug().
			Str("type", string(msg.Type)).
			Str("room", msg.Room).
			Str("active", r.room()).
			Msg("dropping message for inactive room")
		return nil
	}

	if r.anyBusy() {
		if defers < r.cfg.MaxDefers {
			r.clock.AfterFunc(r.cfg.DeferDelay, func() {
				if err := r.apply(msg, defers+1); err != nil {
					log.Error().Err(err).Str("type", string(msg.Type)).Msg("deferred apply failed")
				}
			})
			return nil
		}
		// The busy flag never cleared; treat it as stale rather than
		// stalling updates forever.
		log.Warn().
			Str("type", string(msg.Type)).
			Int("defers", defers).
			Msg("busy flag stuck, applying update anyway")
	}

	payload, err := models.DecodePayload(msg)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case models.FullUpdatePayload:
		r.applyFull(p)
	case models.BoardDelta:
		r.applyBoardDelta(p)
	case models.TimerState:
		r.timer.ApplyAuthoritative(p)
		r.pipeline.Ack("timer")
	case models.WorkflowUpdatePayload:
		r.flow.Replace(p.Workflow, p.WorkItems)
		r.pipeline.Ack(WorkflowEntity)
	case models.RPSPayload:
		r.match.Apply(p)
	default:
		return fmt.Errorf("reconciler cannot apply message type %q", msg.Type)
	}

	r.render()
	return nil
}

// applyFull replaces each present widget section wholesale. The server
// snapshot is always authoritative over local full-widget state, so all
// in-flight marks are cleared.
func (r *Reconciler) applyFull(p models.FullUpdatePayload) {
	if p.Board != nil {
		r.board.Replace(*p.Board)
	}
	if p.Timer != nil {
		r.timer.ApplyAuthoritative(*p.Timer)
	}
	if p.Workflow != nil {
		r.flow.Replace(*p.Workflow, p.WorkItems)
	}
	r.pipeline.Reset()
}

// applyBoardDelta patches the board field-level, skipping an entity whose
// local edit has not been acknowledged yet; the next full snapshot settles
// any divergence.
func (r *Reconciler) applyBoardDelta(d models.BoardDelta) {
	id := d.TaskID
	if d.Task != nil {
		id = d.Task.ID
	}
	entity := TaskEntity(id)
	if r.pipeline.InFlight(entity) && d.Op != models.BoardOpAdd {
		log.Debug().Int("task_id", id).Msg("skipping delta for in-flight task")
		return
	}
	if err := r.board.ApplyDelta(d); err != nil {
		log.Warn().Err(err).Msg("board delta rejected")
		return
	}
	r.pipeline.Ack(entity)
}

// render refreshes the visible view, falling back from a detail view whose
// entity vanished in the update.
func (r *Reconciler) render() {
	r.mu.Lock()
	if r.view == ViewDetail && r.flow.Item(r.detailItem) == nil {
		log.Debug().Int("item_id", r.detailItem).Msg("detail entity gone, falling back to list view")
		r.view = ViewList
		r.detailItem = 0
	}
	view := r.view
	renderer := r.renderer
	r.mu.Unlock()

	if renderer != nil {
		renderer.Render(view)
	}
}

func (r *Reconciler) anyBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.busy {
		if b.Busy() {
			return true
		}
	}
	return false
}
