package engine

import (
	"time"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/world"
	"github.com/riftkeep/outpostd/server/world/save"
)

// persistClient writes cid's own record plus every entity and inventory it
// owns, mirroring save.SaveAll's per-kind writes but scoped to one client's
// reachable subgraph. Called before DestroyClient on logout (so the
// savefile reflects final state, not whatever the last periodic checkpoint
// caught) and before a restart's re-exec (where the client stays resident
// in the savefile rather than being destroyed at all).
func (e *Engine) persistClient(cid geom.ClientId) error {
	c, ok := e.w.Clients.Get(cid)
	if !ok {
		return nil
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for eid := range c.ChildEntities {
		ent, ok := e.w.Entities.Get(eid)
		if !ok {
			continue
		}
		sid, _ := e.w.Entities.Pin(eid)
		note(e.store.WriteGraph(e.store.Dir().EntityPath(sid), func(wr *save.Writer) error {
			return save.WriteEntity(wr, e.w, ent)
		}))
	}
	for iid := range c.ChildInvs {
		inv, ok := e.w.Inventories.Get(iid)
		if !ok {
			continue
		}
		sid, _ := e.w.Inventories.Pin(iid)
		note(e.store.WriteGraph(e.store.Dir().InventoryPath(sid), func(wr *save.Writer) error {
			return save.WriteInventory(wr, e.w, inv)
		}))
	}
	note(e.store.WriteGraph(e.store.Dir().ClientPath(c.Name), func(wr *save.Writer) error {
		return save.WriteClient(wr, e.w, c)
	}))
	return firstErr
}

// logoutAllClients logs out every client in w.Clients through
// logoutClient's normal top-down destroy path (detach view and release
// chunks, drop the wire binding, persist, then DestroyClient), used by shutdown (SPEC_FULL.md §4.7 shut_down). Client
// ids are snapshotted first since logoutClient mutates w.Clients.
func (e *Engine) logoutAllClients() {
	ids := make([]geom.ClientId, 0, e.w.Clients.Len())
	e.w.Clients.Range(func(cid geom.ClientId, _ *world.Client) bool {
		ids = append(ids, cid)
		return true
	})
	for _, cid := range ids {
		e.logoutClient(cid)
	}
}

// shutdown implements SPEC_FULL.md §4.7's shut_down: every client is
// logged out through the normal cascading-destroy path, then the world is
// checkpointed and the store closed. Idempotent and safe to call from
// either an explicit ctrlShutdown control frame or the input pipe closing.
func (e *Engine) shutdown() error {
	if e.shuttingDown {
		return nil
	}
	e.shuttingDown = true

	e.logoutAllClients()
	return e.persistAndClose()
}

// restart implements SPEC_FULL.md §4.7's pre_restart: every currently
// online client is persisted and left resident (not kicked/destroyed),
// and the wire->name mapping for every online client is written so that,
// once the process image is replaced, the new process's Bootstrap can
// silently reattach those wires without a fresh Login handshake (see
// handleControlFrame's ctrlAddClient case).
func (e *Engine) restart() error {
	if e.shuttingDown {
		return nil
	}
	e.shuttingDown = true

	online := e.router.OnlineClients()
	names := make(map[geom.WireId]string, len(online))
	for wid, cid := range online {
		c, ok := e.w.Clients.Get(cid)
		if !ok {
			continue
		}
		if err := e.persistClient(cid); err != nil {
			e.log.Error("engine: persisting client before restart", "client", c.Name, "err", err)
			continue
		}
		names[wid] = c.Name
	}

	if err := save.WriteOnlineClients(e.store, names); err != nil {
		e.log.Error("engine: recording online clients for restart", "err", err)
	}
	return e.persistAndClose()
}

// checkpoint drains in-flight chunk loads and writes every resident
// terrain chunk plus the full object graph to the store, without closing
// anything — the live-save an admin "save" command triggers, and the
// first half of persistAndClose's shutdown/restart tail.
func (e *Engine) checkpoint() error {
	if err := e.chunkMgr.Wait(); err != nil {
		e.log.Error("engine: waiting for in-flight chunk loads", "err", err)
	}
	if err := save.SaveTerrainChunks(e.store, e.w); err != nil {
		e.log.Error("engine: persisting resident terrain chunks", "err", err)
	}
	if err := save.SaveAll(e.store, e.w); err != nil {
		e.log.Error("engine: persisting world checkpoint", "err", err)
	}
	marker := save.CheckpointMarker{RunId: e.runId, UnixMilli: time.Now().UnixMilli()}
	if err := save.WriteCheckpointMarker(e.store, marker); err != nil {
		e.log.Error("engine: writing checkpoint marker", "err", err)
	}
	return nil
}

// persistAndClose checkpoints the world then closes the encoder and
// store, the tail shared by both shutdown and restart.
func (e *Engine) persistAndClose() error {
	if err := e.checkpoint(); err != nil {
		return err
	}
	e.encoder.Close()
	e.store.Close()
	return nil
}
