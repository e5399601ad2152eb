package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riftkeep/outpostd/server/chunks"
	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/session"
	"github.com/riftkeep/outpostd/server/timer"
	"github.com/riftkeep/outpostd/server/vision"
	"github.com/riftkeep/outpostd/server/wire"
	"github.com/riftkeep/outpostd/server/world"
	"github.com/riftkeep/outpostd/server/world/save"
)

// overworldStableId is the well-known stable id of the single plane this
// port keeps resident for the whole process. geom.LimboPlaneStableId (1)
// is already reserved for limbo, so the overworld takes the next one.
const overworldStableId geom.StableId = 2

// AuthStore is the account/session surface the engine's Register and
// Login handlers drive; implemented by the auth package. Kept as an
// interface here so engine does not import auth directly, matching the
// teacher's pattern of depending on narrow capability interfaces rather
// than concrete subsystem packages.
type AuthStore interface {
	Register(name, secret string) error
	Verify(name, secret string) (bool, error)
	IssueTicket(name string) (string, error)
	VerifyTicket(ticket string) (name string, ok bool)
}

// chunkReadyEvent carries a completed background chunk load from
// chunks.Manager's worker goroutine into the engine's single goroutine.
// It is one of the package's two cross-goroutine handoff channels, the
// other being replCmds for admin commands (see provider.go's doc comment
// and admin.go's Dispatch).
type chunkReadyEvent struct {
	plane geom.PlaneId
	cpos  geom.V2
	err   error
}

// Engine owns the single goroutine that mutates world state: Run's select
// loop is the only place Fragment, Vision, or Cache methods are called,
// so none of them need their own locking (see split.go).
type Engine struct {
	log  *slog.Logger
	conf Config

	// epoch maps world.Time (ms) to wall-clock time: a world-time t
	// occurred at epoch.Add(time.Duration(t) * time.Millisecond). It is
	// chosen once per process at startup and is not saved, so world-time
	// counts from this process's start and a restored motion's times are
	// read against the new origin.
	epoch time.Time

	w        *world.World
	frag     *world.Fragment
	vis      *vision.Vision
	router   *session.Router
	cache    *phys.Cache
	store    *save.Store
	provider *worldProvider
	chunkMgr *chunks.Manager
	wakes    *timer.WakeQueue[geom.EntityId]
	auth     AuthStore

	decoder *wire.Decoder
	encoder *wire.Encoder

	guard recursionGuard

	overworldPlane geom.PlaneId

	chunkReady chan chunkReadyEvent

	// replCmds carries admin console lines (console.Console.Dispatch) into
	// the event loop; see admin.go's handleReplCommand.
	replCmds chan string

	// motionCookie tracks the pending wake (if any) scheduled to
	// recompute an entity's physics once its current motion completes.
	motionCookie map[geom.EntityId]timer.Cookie

	// restartPending maps a wire id to the client name that was online on
	// it when a prior run called restart; populated once at Bootstrap
	// from the online-clients file and drained as each wire reconnects
	// (see logic.go's reattachIfRestarting).
	restartPending map[geom.WireId]string

	// runId identifies this process's lifetime in the checkpoint marker
	// persist.go's checkpoint writes, so an operator inspecting a save
	// directory after a crash can tell which run last touched it.
	runId string

	shuttingDown bool
}

// NewEngine wires every subsystem together and returns an Engine ready for
// Bootstrap then Run. decoder/writer are the single multiplexed
// stdin/stdout framed pipe described in wire.Frame's doc comment; seed
// drives the placeholder terrain generator (see provider.go).
func NewEngine(conf Config, store *save.Store, templates world.TemplateTable, shapes phys.BlockShapeTable, auth AuthStore, decoder *wire.Decoder, writer interface {
	Write([]byte) (int, error)
}, seed int64) *Engine {
	w := world.New()
	vis := vision.New()
	router := session.NewRouter()
	hooks := newEngineHooks(w, vis, router)
	frag := world.NewFragment(w, templates, hooks, nil)

	e := &Engine{
		log:          conf.Log,
		conf:         conf,
		w:            w,
		frag:         frag,
		vis:          vis,
		router:       router,
		store:        store,
		auth:         auth,
		decoder:        decoder,
		chunkReady:     make(chan chunkReadyEvent, 256),
		replCmds:       make(chan string, 16),
		motionCookie:   make(map[geom.EntityId]timer.Cookie),
		restartPending: make(map[geom.WireId]string),
	}

	e.encoder = wire.NewEncoder(writer, func(err error) {
		e.log.Error("engine: write to output pipe failed", "err", err)
	})

	cacheSrc := world.CacheSource{W: w, Templates: templates}
	e.cache = phys.NewCache(shapes, cacheSrc)

	gen := newFlatGenerator(seed)
	e.provider = newWorldProvider(store, gen)
	e.chunkMgr = chunks.NewManager(context.Background(), e.provider, conf.ChunkWorkers, e.onChunkReady)

	e.wakes = timer.NewWakeQueue[geom.EntityId]()

	return e
}

// onChunkReady is called by chunks.Manager from a background worker
// goroutine; it must not touch w/frag/cache directly (see provider.go),
// so it only forwards the event to the engine goroutine's select loop.
func (e *Engine) onChunkReady(plane geom.PlaneId, cpos geom.V2, err error) {
	e.chunkReady <- chunkReadyEvent{plane: plane, cpos: cpos, err: err}
}

// Bootstrap loads any previous checkpoint and ensures the resident
// overworld plane exists, fabricating it fresh on a brand new save
// directory. Must be called once before Run, on the same goroutine that
// will call Run (no concurrent access has started yet, so no guard is
// needed here).
func (e *Engine) Bootstrap() error {
	e.epoch = time.Now()
	e.runId = uuid.NewString()

	saved, err := save.ListSaved(e.store)
	if err != nil {
		return fmt.Errorf("engine: list savefiles: %w", err)
	}
	if err := save.LoadAll(e.store, e.w, saved.ClientNames, saved.Planes, saved.Entities, saved.Inventories, saved.Structures); err != nil {
		return fmt.Errorf("engine: load savefiles: %w", err)
	}

	e.overworldPlane = save.ResolvePlane(e.w, overworldStableId)
	if p, ok := e.w.Planes.Get(e.overworldPlane); ok && p.Name == "" {
		p.Name = "overworld"
	}

	online, err := save.ReadOnlineClients(e.store)
	if err != nil {
		return fmt.Errorf("engine: read online-clients file: %w", err)
	}
	e.restartPending = online

	// Every other client loaded from disk starts logged out; its
	// world-side state (pawn, inventories) stays parked until it
	// reconnects, so nothing further needs doing here for them.
	return nil
}

// worldNow returns the current world-time, derived from wall-clock time
// and the epoch fixed at Bootstrap.
func (e *Engine) worldNow() world.Time {
	return world.Time(time.Since(e.epoch).Milliseconds())
}

func (e *Engine) toTimerTime(t world.Time) timer.Time {
	wall := e.epoch.Add(time.Duration(t) * time.Millisecond)
	return timer.Time(wall.UnixMilli())
}

// Run is the single-goroutine event loop (SPEC_FULL.md §5): it
// multiplexes inbound wire frames, timer wakeups, and background
// chunk-load completions, applying every mutation through Fragment so no
// lock is ever needed over world state. It returns once Shutdown is
// requested (ctrlShutdown) or the input pipe closes.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return e.shutdown()

		case f, ok := <-e.decoder.Frames():
			if !ok {
				e.log.Info("engine: input pipe closed, shutting down")
				return e.shutdown()
			}
			e.step(func() { e.handleFrame(f) })
			if e.shuttingDown {
				return nil
			}

		case cookie, ok := <-e.wakes.Wakes():
			if !ok {
				continue
			}
			e.step(func() { e.handleWake(cookie) })

		case ev := <-e.chunkReady:
			e.step(func() { e.handleChunkReady(ev) })

		case line := <-e.replCmds:
			e.step(func() { e.handleReplCommand(line) })
			if e.shuttingDown {
				return nil
			}
		}
	}
}

// step wraps a single event-loop iteration with the recursion guard that
// documents (and asserts) this package's single-goroutine invariant.
func (e *Engine) step(fn func()) {
	done := e.guard.enter()
	defer done()
	fn()
}

// shutdown and restart (persist.go) both set e.shuttingDown; once either
// has run, Run's loop exits on its next iteration.
