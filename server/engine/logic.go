package engine

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/timer"
	"github.com/riftkeep/outpostd/server/vision"
	"github.com/riftkeep/outpostd/server/wire"
	"github.com/riftkeep/outpostd/server/world"
)

// entitySize is the axis-aligned hitbox every pawn entity collides with.
// One tile footprint, two tiles tall, matching the flat terrain generator's
// one-tile rises in provider.go.
var entitySize = geom.V3{X: geom.TileSize, Y: geom.TileSize, Z: 2 * geom.TileSize}

// planeShapeSource adapts *phys.Cache, which is keyed by plane, to
// phys.ShapeSource, which Collide expects bound to a single plane (see
// collide.go's doc comment).
type planeShapeSource struct {
	cache *phys.Cache
	plane geom.PlaneId
}

func (s planeShapeSource) ShapeAt(pos geom.V3) phys.Shape {
	return s.cache.ShapeAt(s.plane, pos)
}

func (e *Engine) cb() vision.Callbacks {
	return visionCallbacks{w: e.w, rt: e.router}
}

// handleFrame dispatches one inbound wire.Frame. Frames on the control
// wire are framing-level connection/process events (see proto.go);
// everything else is routed by whichever client is currently bound to
// that wire.
func (e *Engine) handleFrame(f wire.Frame) {
	if f.Wire == geom.ControlWireId {
		e.handleControlFrame(f)
		return
	}

	cid, ok := e.router.ClientForWire(f.Wire)
	if !ok {
		e.handlePreAuthFrame(f)
		return
	}

	switch f.Opcode {
	case opInput:
		e.handleInput(cid, f.Body)
	case opChat:
		e.handleChat(cid, f.Body)
	case opMoveItem:
		e.handleMoveItem(cid, f.Body)
	case opUnsubscribeInv:
		e.handleUnsubscribeInventory(cid, f.Body)
	case opCheckView:
		e.handleCheckView(cid)
	default:
		e.log.Warn("engine: unknown opcode from authenticated client", "wire", f.Wire, "opcode", f.Opcode)
	}
}

// handlePreAuthFrame handles the two opcodes legal before a wire has a
// client bound to it: registering a new account and logging into one.
func (e *Engine) handlePreAuthFrame(f wire.Frame) {
	switch f.Opcode {
	case opRegister:
		e.handleRegister(f.Wire, f.Body)
	case opLogin:
		e.handleLogin(f.Wire, f.Body)
	default:
		e.router.SendControl(f.Wire, opKick, encodeKick("not logged in"))
	}
}

func (e *Engine) handleControlFrame(f wire.Frame) {
	switch f.Opcode {
	case ctrlAddClient:
		req, err := decodeAddClient(f.Body)
		if err != nil {
			e.log.Error("engine: malformed ctrlAddClient", "err", err)
			return
		}
		e.router.AddWire(req.Wire, e.encoder)
		e.reattachIfRestarting(req.Wire)
	case ctrlRemoveClient:
		req, err := decodeRemoveClient(f.Body)
		if err != nil {
			e.log.Error("engine: malformed ctrlRemoveClient", "err", err)
			return
		}
		e.handleClientDisconnect(req.Wire)
	case ctrlShutdown:
		e.shutdown()
	case ctrlRestart:
		e.restart()
	default:
		e.log.Warn("engine: unknown control opcode", "opcode", f.Opcode)
	}
}

// reattachIfRestarting silently re-logs-in wid's client with no Login
// handshake, if wid was recorded as online by a prior restart (see
// persist.go's restart and Bootstrap's loading of the online-clients
// file) — SPEC_FULL.md §4.7's post_restart.
func (e *Engine) reattachIfRestarting(wid geom.WireId) {
	name, ok := e.restartPending[wid]
	if !ok {
		return
	}
	delete(e.restartPending, wid)
	cid, err := e.findOrCreateClient(name)
	if err != nil {
		e.log.Error("engine: reattaching restarted client", "name", name, "err", err)
		return
	}
	e.loginClient(cid, wid)
}

// handleClientDisconnect tears down whatever world-side session was bound
// to wid, if any. The connection itself is already gone by the time this
// fires; only the logical logout remains.
func (e *Engine) handleClientDisconnect(wid geom.WireId) {
	cid, hadClient := e.router.RemoveWire(wid)
	if !hadClient {
		return
	}
	e.logoutClient(cid)
}

func (e *Engine) logoutClient(cid geom.ClientId) {
	c, ok := e.w.Clients.Get(cid)
	if !ok {
		return
	}
	if c.Pawn != geom.NoEntity {
		if ent, ok := e.w.Entities.Get(c.Pawn); ok {
			if region, hadView := e.vis.ClientView(cid); hadView {
				e.vis.RemoveClient(cid, e.cb())
				e.releaseViewChunks(ent.Plane, region)
			}
			e.cancelMotionWake(c.Pawn)
		}
	}
	e.router.RemoveClient(cid)
	if err := e.persistClient(cid); err != nil {
		e.log.Error("engine: persisting client on logout", "client", c.Name, "err", err)
	}
	if err := e.frag.DestroyClient(cid); err != nil {
		e.log.Error("engine: destroying client on logout", "client", cid, "err", err)
	}
}

// --- Registration / login ---------------------------------------------------

func (e *Engine) handleRegister(wid geom.WireId, body []byte) {
	req, err := decodeRegister(body)
	if err != nil {
		e.router.SendControl(wid, opKick, encodeKick("malformed register request"))
		return
	}
	if err := e.auth.Register(req.Name, req.Secret); err != nil {
		e.router.SendControl(wid, opKick, encodeKick(err.Error()))
		return
	}
}

func (e *Engine) handleLogin(wid geom.WireId, body []byte) {
	req, err := decodeLogin(body)
	if err != nil {
		e.router.SendControl(wid, opKick, encodeKick("malformed login request"))
		return
	}

	var name string
	var ok bool
	if req.Ticket != "" {
		name, ok = e.auth.VerifyTicket(req.Ticket)
	} else {
		ok, err = e.auth.Verify(req.Name, req.Secret)
		name = req.Name
	}
	if !ok || err != nil {
		e.router.SendControl(wid, opKick, encodeKick("login failed"))
		return
	}
	if e.conf.MaxPlayers > 0 && len(e.router.OnlineClients()) >= e.conf.MaxPlayers {
		e.router.SendControl(wid, opKick, encodeKick("server full"))
		return
	}

	cid, err := e.findOrCreateClient(name)
	if err != nil {
		e.router.SendControl(wid, opKick, encodeKick(err.Error()))
		return
	}
	e.loginClient(cid, wid)
}

func (e *Engine) findOrCreateClient(name string) (geom.ClientId, error) {
	var found geom.ClientId
	var ok bool
	e.w.Clients.Range(func(cid geom.ClientId, c *world.Client) bool {
		if c.Name == name {
			found, ok = cid, true
			return false
		}
		return true
	})
	if ok {
		return found, nil
	}
	return e.frag.CreateClient(name), nil
}

// loginClient binds an already-resolved client to wid and establishes its
// pawn, view, and retained chunks. A client with no pawn yet (first ever
// login) is spawned at the overworld's origin.
func (e *Engine) loginClient(cid geom.ClientId, wid geom.WireId) {
	c, ok := e.w.Clients.Get(cid)
	if !ok {
		return
	}

	now := e.worldNow()
	if c.Pawn == geom.NoEntity {
		eid := e.frag.CreateEntityWorld(overworldStableId, geom.V3{}, now)
		if err := e.frag.AttachEntityClient(eid, cid); err != nil {
			e.log.Error("engine: attaching pawn to client", "err", err)
			return
		}
		c.Pawn = eid
		e.frag.LeaveLimbo(e.overworldPlane, overworldStableId)
	}

	e.router.AddWire(wid, e.encoder)
	e.router.AddClient(cid, wid)

	ent, ok := e.w.Entities.Get(c.Pawn)
	if !ok {
		return
	}
	view := vision.RegionFor(ent.Motion.PosAt(now))
	e.retainViewChunks(ent.Plane, view)
	e.vis.AddClient(cid, view, e.cb())

	ticket, err := e.auth.IssueTicket(c.Name)
	if err != nil {
		e.log.Error("engine: issuing reconnect ticket", "client", c.Name, "err", err)
	}
	e.router.Send(cid, opInit, encodeInit(c.Pawn, ticket))
}

// --- View / chunk retain-release --------------------------------------------

// retainViewChunks retains, via chunkMgr, every chunk in region; each
// chunk's halo neighbors are pre-bound to their savefile id (if any)
// first, since Manager's own halo expansion may pull in loads for them
// before the engine ever directly retains them (see provider.go's
// bindChunk doc comment).
func (e *Engine) retainViewChunks(plane geom.PlaneId, region geom.Region2) {
	p, ok := e.w.Planes.Get(plane)
	if !ok {
		return
	}
	region.Points(func(cpos geom.V2) {
		e.bindHalo(plane, p, cpos)
		e.chunkMgr.Retain(plane, cpos)
	})
}

func (e *Engine) releaseViewChunks(plane geom.PlaneId, region geom.Region2) {
	region.Points(func(cpos geom.V2) {
		e.chunkMgr.Release(plane, cpos)
	})
}

func (e *Engine) bindHalo(plane geom.PlaneId, p *world.Plane, cpos geom.V2) {
	geom.RegionAround(cpos, 1).Points(func(sub geom.V2) {
		e.provider.bindChunk(plane, sub, p.SavedChunks[sub])
	})
}

// --- Chunk lifecycle ---------------------------------------------------------

// handleChunkReady applies a completed background chunk load. It may name
// a chunk the engine never directly retained (only pulled in as another
// chunk's halo neighbor), so CreateTerrainChunk is always attempted; it is
// idempotent when the chunk already exists.
func (e *Engine) handleChunkReady(ev chunkReadyEvent) {
	if ev.err != nil {
		e.log.Error("engine: chunk load failed", "plane", ev.plane, "cpos", ev.cpos, "err", ev.err)
		return
	}
	lc, ok := e.provider.takeResult(ev.plane, ev.cpos)
	if !ok {
		return
	}

	tcid, err := e.frag.CreateTerrainChunk(ev.plane, ev.cpos)
	if err != nil {
		e.log.Error("engine: creating terrain chunk", "err", err)
		return
	}

	if err := e.frag.UpdateTerrainChunkBlocks(tcid, func(b *phys.BlockChunk) {
		*b = *lc.blocks
	}); err != nil {
		e.log.Error("engine: installing loaded chunk blocks", "err", err)
		return
	}

	e.cache.AddChunk(ev.plane, ev.cpos)
	e.provider.unbindChunk(ev.plane, ev.cpos)
}

// --- Physics / input ---------------------------------------------------------

func (e *Engine) handleInput(cid geom.ClientId, body []byte) {
	req, err := decodeInput(body)
	if err != nil {
		return
	}
	c, ok := e.w.Clients.Get(cid)
	if !ok || c.Pawn == geom.NoEntity {
		return
	}
	ent, ok := e.w.Entities.Get(c.Pawn)
	if !ok || ent.InLimbo() {
		return
	}

	ent.TargetVelocity = req.Velocity
	ent.Facing = req.Facing
	e.stepMotion(c.Pawn, ent)
	if e.router.MaybeCheckView(cid, e.worldNow()) {
		e.handleCheckView(cid)
	}
}

// stepMotion recomputes an entity's Motion from its current position and
// TargetVelocity via the collision kernel, and schedules a wake for when
// that motion naturally completes so continuous movement keeps recomputing.
func (e *Engine) stepMotion(eid geom.EntityId, ent *world.Entity) {
	now := e.worldNow()
	pos := ent.Motion.PosAt(now)

	source := planeShapeSource{cache: e.cache, plane: ent.Plane}
	end, duration := phys.Collide(source, entitySize, pos, ent.TargetVelocity)

	m := world.Motion{StartPos: pos, EndPos: end, StartTime: now, Duration: duration}
	if duration == phys.DurationMax {
		m.Duration = 0
		m.EndPos = pos
	}
	if err := e.frag.SetEntityMotion(eid, m); err != nil {
		e.log.Error("engine: setting entity motion", "err", err)
		return
	}

	e.cancelMotionWake(eid)
	if !m.Fixed() {
		cookie := e.wakes.Schedule(e.toTimerTime(m.EndTime()), eid)
		e.motionCookie[eid] = cookie
	}
}

func (e *Engine) cancelMotionWake(eid geom.EntityId) {
	if cookie, ok := e.motionCookie[eid]; ok {
		e.wakes.Cancel(cookie)
		delete(e.motionCookie, eid)
	}
}

func (e *Engine) handleWake(cookie timer.Cookie) {
	_, eid := e.wakes.Retrieve(cookie)
	delete(e.motionCookie, eid)

	ent, ok := e.w.Entities.Get(eid)
	if !ok || ent.InLimbo() {
		return
	}
	if ent.TargetVelocity.IsZero() {
		return
	}
	e.stepMotion(eid, ent)
}

// --- Chat / inventory ---------------------------------------------------------

func (e *Engine) handleChat(cid geom.ClientId, body []byte) {
	req, err := decodeChat(body)
	if err != nil {
		return
	}
	c, ok := e.w.Clients.Get(cid)
	if !ok {
		return
	}
	if strings.HasPrefix(req.Text, "/") {
		e.handleChatCommand(cid, c, req.Text[1:])
		return
	}
	msg := encodeChatBroadcast(c.Name, req.Text)
	e.w.Clients.Range(func(other geom.ClientId, _ *world.Client) bool {
		e.router.Send(other, opChatBroadcast, msg)
		return true
	})
}

// handleChatCommand dispatches a "/"-prefixed chat line server-side
// instead of broadcasting it (SPEC_FULL.md §12's supplemented chat
// command dispatch). Replies are sent only to the issuing client, as an
// opChatBroadcast "from" the reserved server name.
func (e *Engine) handleChatCommand(cid geom.ClientId, c *world.Client, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "who":
		var names []string
		e.w.Clients.Range(func(_ geom.ClientId, other *world.Client) bool {
			names = append(names, other.Name)
			return true
		})
		slices.Sort(names)
		e.router.Send(cid, opChatBroadcast, encodeChatBroadcast("server", strings.Join(names, ", ")))
	default:
		e.router.Send(cid, opChatBroadcast, encodeChatBroadcast("server", "unknown command: "+fields[0]))
	}
}

func (e *Engine) handleMoveItem(cid geom.ClientId, body []byte) {
	req, err := decodeMoveItem(body)
	if err != nil {
		return
	}
	if _, err := e.frag.MoveInventoryItems(req.SrcIid, req.SrcSlot, req.DstIid, req.DstSlot, req.Count); err != nil {
		e.log.Debug("engine: move item rejected", "client", cid, "err", err)
	}
}

func (e *Engine) handleUnsubscribeInventory(cid geom.ClientId, body []byte) {
	req, err := decodeUnsubscribeInventory(body)
	if err != nil {
		return
	}
	e.vis.UnsubscribeInventory(cid, req.Iid, e.cb())
}

func (e *Engine) handleCheckView(cid geom.ClientId) {
	c, ok := e.w.Clients.Get(cid)
	if !ok || c.Pawn == geom.NoEntity {
		return
	}
	ent, ok := e.w.Entities.Get(c.Pawn)
	if !ok || ent.InLimbo() {
		return
	}

	oldView, hadView := e.vis.ClientView(cid)
	newView := vision.RegionFor(ent.Motion.PosAt(e.worldNow()))
	if hadView && oldView == newView {
		return
	}

	if hadView {
		e.diffRetainRelease(ent.Plane, oldView, newView)
	} else {
		e.retainViewChunks(ent.Plane, newView)
	}
	e.vis.SetClientView(cid, newView, e.cb())
}

// diffRetainRelease retains chunks newly entering newView and releases
// chunks leaving oldView, mirroring the appear/disappear diff
// Vision.SetClientView performs internally for visibility bookkeeping.
func (e *Engine) diffRetainRelease(plane geom.PlaneId, oldView, newView geom.Region2) {
	p, ok := e.w.Planes.Get(plane)
	if !ok {
		return
	}
	newView.Points(func(cpos geom.V2) {
		if !oldView.Contains(cpos) {
			e.bindHalo(plane, p, cpos)
			e.chunkMgr.Retain(plane, cpos)
		}
	})
	oldView.Points(func(cpos geom.V2) {
		if !newView.Contains(cpos) {
			e.chunkMgr.Release(plane, cpos)
		}
	})
}
