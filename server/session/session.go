// Package session maps between transient ClientIds and the WireIds of the
// physical connections carrying their traffic, owns each client's
// outbound frame queue, and performs the client-local coordinate remap
// described in SPEC_FULL.md §6: every client is assigned a random chunk
// offset so it observes a torus-wrapped, fixed-size local window rather
// than absolute world coordinates.
package session

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/wire"
	"github.com/riftkeep/outpostd/server/world"
)

// LocalBits sizes the client-local torus window to 2^LocalBits chunks on
// a side (8x8, per §6).
const LocalBits = 3

// LocalSize is the window's extent in chunks.
const LocalSize = int32(1) << LocalBits

// localPixelMask masks a pixel coordinate into the local window; the window's
// pixel extent is a power of two since Tile/Chunk/Local sizes all are.
const localPixelExtent = geom.TileSize * geom.ChunkSize * LocalSize
const localPixelMask = localPixelExtent - 1

// LocalTime is a wire-compressed world-time: the low 16 bits of Time in
// milliseconds. ToLocalTime/FromLocalTime round-trip correctly so long as
// the true delta from the reconstructing side's current time is within
// +/-32768ms, which holds for any live motion span (§6, §9).
type LocalTime uint16

// ToLocalTime truncates world-time t to its wire representation.
func ToLocalTime(t world.Time) LocalTime { return LocalTime(uint16(t)) }

// FromLocalTime reconstructs a world-time near base from its truncated
// wire form.
func FromLocalTime(lt LocalTime, base world.Time) world.Time {
	delta := int16(uint16(lt) - uint16(base))
	return base + world.Time(delta)
}

// LocalMotion is Motion translated into one client's local coordinate
// window, ready for the (out-of-scope) wire codec to serialize.
type LocalMotion struct {
	StartPos           geom.V3
	EndPos             geom.V3
	StartTime, EndTime LocalTime
}

// ErrUnknownWire is returned when a frame arrives for a WireId with no
// registered connection.
var ErrUnknownWire = errors.New("session: no connection registered for wire")

// ErrUnknownClient is returned when an operation names a ClientId with no
// active session.
var ErrUnknownClient = errors.New("session: no active session for client")

// info is the per-authenticated-client state: which wire carries its
// traffic and the random offset that derives its local coordinate window.
type info struct {
	wire       geom.WireId
	chunkOff   geom.V2
	lastCheck  world.Time
	checked    bool
}

// Router owns the wire<->client bindings and each wire's outbound Encoder.
// It is the Go analogue of the original design's Clients/ClientInfo.
type Router struct {
	mu sync.Mutex

	encoders map[geom.WireId]*wire.Encoder
	wireOf   map[geom.ClientId]geom.WireId
	byWire   map[geom.WireId]geom.ClientId
	infos    map[geom.ClientId]*info
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{
		encoders: make(map[geom.WireId]*wire.Encoder),
		wireOf:   make(map[geom.ClientId]geom.WireId),
		byWire:   make(map[geom.WireId]geom.ClientId),
		infos:    make(map[geom.ClientId]*info),
	}
}

// AddWire registers a freshly opened connection's outbound Encoder,
// before any client has logged in on it (pre-auth traffic uses WireId
// directly).
func (r *Router) AddWire(wid geom.WireId, enc *wire.Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[wid] = enc
}

// RemoveWire drops a closed connection's Encoder and, if a client was
// bound to it, unbinds the client too (the caller is still responsible
// for destroying the client's world-side state).
func (r *Router) RemoveWire(wid geom.WireId) (cid geom.ClientId, hadClient bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.encoders, wid)
	cid, hadClient = r.byWire[wid]
	if hadClient {
		delete(r.byWire, wid)
		delete(r.wireOf, cid)
		delete(r.infos, cid)
	}
	return cid, hadClient
}

// AddClient binds cid to wid (which must already be registered via
// AddWire) and assigns it a random chunk offset for coordinate remapping.
func (r *Router) AddClient(cid geom.ClientId, wid geom.WireId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wireOf[cid] = wid
	r.byWire[wid] = cid
	r.infos[cid] = &info{
		wire:      wid,
		chunkOff:  geom.V2{X: rand.Int31n(LocalSize), Y: rand.Int31n(LocalSize)},
		lastCheck: 0,
	}
}

// RemoveClient unbinds cid without touching its wire's Encoder (used on
// logout while the connection stays open, e.g. to transition to a fresh
// login).
func (r *Router) RemoveClient(cid geom.ClientId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wid, ok := r.wireOf[cid]; ok {
		delete(r.byWire, wid)
	}
	delete(r.wireOf, cid)
	delete(r.infos, cid)
}

// OnlineClients returns a snapshot of every wire currently bound to a
// logged-in client, keyed by wire id. Used by a restart (SPEC_FULL.md
// §4.7's pre_restart) to record which wires must be silently reattached
// once the process image is replaced.
func (r *Router) OnlineClients() map[geom.WireId]geom.ClientId {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[geom.WireId]geom.ClientId, len(r.byWire))
	for wid, cid := range r.byWire {
		out[wid] = cid
	}
	return out
}

// ClientForWire resolves an inbound frame's WireId to the ClientId
// currently logged in on it, if any.
func (r *Router) ClientForWire(wid geom.WireId) (geom.ClientId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cid, ok := r.byWire[wid]
	return cid, ok
}

// Send enqueues a frame on cid's underlying wire connection.
func (r *Router) Send(cid geom.ClientId, opcode uint16, body []byte) error {
	r.mu.Lock()
	wid, ok := r.wireOf[cid]
	var enc *wire.Encoder
	if ok {
		enc, ok = r.encoders[wid]
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownClient
	}
	enc.Enqueue(wire.Frame{Wire: wid, Opcode: opcode, Body: body})
	return nil
}

// SendControl enqueues a control-channel frame directly on a wire, for
// pre-authentication traffic (bad request, login failure kicks).
func (r *Router) SendControl(wid geom.WireId, opcode uint16, body []byte) error {
	r.mu.Lock()
	enc, ok := r.encoders[wid]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownWire
	}
	enc.Enqueue(wire.Frame{Wire: wid, Opcode: opcode, Body: body})
	return nil
}

// MaybeCheckView reports whether it has been at least 1000ms since cid
// last ran a CheckView pass, and if so records now as the new baseline.
// Mirrors ClientInfo::maybe_check.
func (r *Router) MaybeCheckView(cid geom.ClientId, now world.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.infos[cid]
	if !ok {
		return false
	}
	if in.checked && now < in.lastCheck+1000 {
		return false
	}
	in.checked = true
	in.lastCheck = now
	return true
}

// LocalChunkIndex returns the wire-side index a client should use for
// chunk cpos, wrapped into its local torus window.
func (r *Router) LocalChunkIndex(cid geom.ClientId, cpos geom.V2) (uint16, error) {
	off, err := r.chunkOffset(cid)
	if err != nil {
		return 0, err
	}
	cx := (cpos.X + off.X) & (LocalSize - 1)
	cy := (cpos.Y + off.Y) & (LocalSize - 1)
	return uint16(cy*LocalSize + cx), nil
}

// LocalPos translates a world pixel position into cid's local window.
func (r *Router) LocalPos(cid geom.ClientId, pos geom.V3) (geom.V3, error) {
	off, err := r.chunkOffset(cid)
	if err != nil {
		return geom.V3{}, err
	}
	return localPos(pos, off), nil
}

// LocalMotionFor translates a Motion into cid's local window. It adds one
// full window-width to the start position before computing the end (per
// the original design) so a motion whose span crosses the wrap boundary
// still renders as a single unwrapped movement to the client, rather than
// jumping across the window.
func (r *Router) LocalMotionFor(cid geom.ClientId, m world.Motion) (LocalMotion, error) {
	off, err := r.chunkOffset(cid)
	if err != nil {
		return LocalMotion{}, err
	}
	start := localPos(m.StartPos, off)
	start = geom.V3{X: start.X + localPixelExtent, Y: start.Y + localPixelExtent, Z: start.Z}
	delta := m.EndPos.Sub(m.StartPos)
	end := start.Add(delta)
	return LocalMotion{
		StartPos:  start,
		EndPos:    end,
		StartTime: ToLocalTime(m.StartTime),
		EndTime:   ToLocalTime(m.EndTime()),
	}, nil
}

func (r *Router) chunkOffset(cid geom.ClientId) (geom.V2, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.infos[cid]
	if !ok {
		return geom.V2{}, ErrUnknownClient
	}
	return in.chunkOff, nil
}

func localPos(pos geom.V3, off geom.V2) geom.V3 {
	x := (pos.X + off.X*geom.ChunkSize*geom.TileSize) & localPixelMask
	y := (pos.Y + off.Y*geom.ChunkSize*geom.TileSize) & localPixelMask
	return geom.V3{X: x, Y: y, Z: pos.Z}
}

// KickReason is a human-readable string sent to a client immediately
// before its wire is closed (§7: protocol/auth errors).
type KickReason string

// String satisfies fmt.Stringer so kicks are easy to log.
func (k KickReason) String() string { return string(k) }
