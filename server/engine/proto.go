package engine

import (
	"encoding/binary"
	"errors"

	"golang.org/x/text/width"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/wire"
)

// The per-opcode body schema table is explicitly out of scope (SPEC_FULL.md
// §6: "the per-opcode body schema table is out of scope"). This file
// implements only the minimal request/response shapes actually needed to
// drive the five in-scope subsystems end to end — enough for the event
// loop in engine.go to dispatch real Login/Register/Input/Chat/MoveItem
// traffic, not a complete production wire format.

const (
	opRegister            = uint16(1)
	opLogin               = uint16(2)
	opInput               = uint16(3)
	opChat                = uint16(4)
	opMoveItem            = uint16(5)
	opUnsubscribeInv      = uint16(6)
	opCheckView           = uint16(7)

	opInit            = opRegister | wire.OpcodeDirectionBit
	opKick            = opLogin | wire.OpcodeDirectionBit
	opChunkUpdate     = opInput | wire.OpcodeDirectionBit
	opChunkGone       = opChat | wire.OpcodeDirectionBit
	opEntityAppear    = opMoveItem | wire.OpcodeDirectionBit
	opEntityGone      = opUnsubscribeInv | wire.OpcodeDirectionBit
	opEntityUpdate    = opCheckView | wire.OpcodeDirectionBit
	opInventoryUpdate = (opCheckView + 1) | wire.OpcodeDirectionBit
	opChatBroadcast   = (opCheckView + 2) | wire.OpcodeDirectionBit
)

// Control opcodes travel only on geom.ControlWireId (0): per wire.Frame's doc
// comment, that wire carries framing-level connection and process lifecycle
// events rather than per-client traffic, which is how a multi-connection
// frontend multiplexes many physical sockets over this engine's one framed
// stdin/stdout pipe.
const (
	ctrlAddClient    = uint16(1)
	ctrlRemoveClient = uint16(2)
	ctrlShutdown     = uint16(3)
	ctrlRestart      = uint16(4)
)

// addClientControl is ctrlAddClient's body: the wire id the frontend just
// assigned to a newly accepted connection.
type addClientControl struct {
	Wire geom.WireId
}

func decodeAddClient(body []byte) (addClientControl, error) {
	if len(body) < 2 {
		return addClientControl{}, ErrBadRequest
	}
	return addClientControl{Wire: geom.WireId(binary.LittleEndian.Uint16(body[0:2]))}, nil
}

// removeClientControl is ctrlRemoveClient's body: the wire id whose
// connection the frontend just closed.
type removeClientControl struct {
	Wire geom.WireId
}

func decodeRemoveClient(body []byte) (removeClientControl, error) {
	if len(body) < 2 {
		return removeClientControl{}, ErrBadRequest
	}
	return removeClientControl{Wire: geom.WireId(binary.LittleEndian.Uint16(body[0:2]))}, nil
}

// ErrBadRequest is returned by the decode helpers below when a frame body
// is shorter than its fixed schema requires. It never panics the engine:
// a malformed register or login request gets a kick, while the other
// request handlers (input, chat, item moves, unsubscribe) drop the
// request without replying.
var ErrBadRequest = errors.New("engine: malformed request body")

func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, ErrBadRequest
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < n {
		return "", nil, ErrBadRequest
	}
	return string(b[:n]), b[n:], nil
}

func writeString(s string) []byte {
	out := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(s)))
	copy(out[2:], s)
	return out
}

func readV3(b []byte) (geom.V3, []byte, error) {
	if len(b) < 12 {
		return geom.V3{}, nil, ErrBadRequest
	}
	v := geom.V3{
		X: int32(binary.LittleEndian.Uint32(b[0:4])),
		Y: int32(binary.LittleEndian.Uint32(b[4:8])),
		Z: int32(binary.LittleEndian.Uint32(b[8:12])),
	}
	return v, b[12:], nil
}

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

func writeV3(v geom.V3) []byte {
	out := make([]byte, 12)
	binary.LittleEndian.PutUint32(out[0:4], uint32(v.X))
	binary.LittleEndian.PutUint32(out[4:8], uint32(v.Y))
	binary.LittleEndian.PutUint32(out[8:12], uint32(v.Z))
	return out
}

// registerRequest is OpRegister's body: a display name and the secret to
// register it with.
type registerRequest struct {
	Name   string
	Secret string
}

func decodeRegister(body []byte) (registerRequest, error) {
	name, rest, err := readString(body)
	if err != nil {
		return registerRequest{}, err
	}
	secret, _, err := readString(rest)
	if err != nil {
		return registerRequest{}, err
	}
	return registerRequest{Name: name, Secret: secret}, nil
}

// loginRequest is OpLogin's body: a name plus either a raw secret or a
// previously issued reconnect ticket (ticket non-empty takes precedence).
type loginRequest struct {
	Name   string
	Secret string
	Ticket string
}

func decodeLogin(body []byte) (loginRequest, error) {
	name, rest, err := readString(body)
	if err != nil {
		return loginRequest{}, err
	}
	secret, rest, err := readString(rest)
	if err != nil {
		return loginRequest{}, err
	}
	ticket, _, err := readString(rest)
	if err != nil {
		return loginRequest{}, err
	}
	return loginRequest{Name: name, Secret: secret, Ticket: ticket}, nil
}

// inputRequest is OpInput's body: the client's requested target velocity
// and facing direction.
type inputRequest struct {
	Velocity geom.V3
	Facing   geom.V3
}

func decodeInput(body []byte) (inputRequest, error) {
	vel, rest, err := readV3(body)
	if err != nil {
		return inputRequest{}, err
	}
	facing, _, err := readV3(rest)
	if err != nil {
		return inputRequest{}, err
	}
	return inputRequest{Velocity: vel, Facing: facing}, nil
}

// chatRequest is OpChat's body: a plain-text message, capped at 400
// bytes per the original design's chat() handler.
type chatRequest struct {
	Text string
}

const maxChatLen = 400

// decodeChat folds fullwidth/halfwidth character variants to their
// canonical form before the length check, so a client cannot pad a
// message past maxChatLen using display-width lookalikes that read the
// same to another client's renderer.
func decodeChat(body []byte) (chatRequest, error) {
	text, _, err := readString(body)
	if err != nil {
		return chatRequest{}, err
	}
	text = width.Fold.String(text)
	if len(text) > maxChatLen {
		return chatRequest{}, ErrBadRequest
	}
	return chatRequest{Text: text}, nil
}

// moveItemRequest is OpMoveItem's body.
type moveItemRequest struct {
	SrcIid, DstIid geom.InventoryId
	SrcSlot, DstSlot int
	Count          uint8
}

func decodeMoveItem(body []byte) (moveItemRequest, error) {
	if len(body) < 4+4+2+2+1 {
		return moveItemRequest{}, ErrBadRequest
	}
	srcIid := geom.InventoryId(binary.LittleEndian.Uint32(body[0:4]))
	dstIid := geom.InventoryId(binary.LittleEndian.Uint32(body[4:8]))
	srcSlot := int(binary.LittleEndian.Uint16(body[8:10]))
	dstSlot := int(binary.LittleEndian.Uint16(body[10:12]))
	count := body[12]
	return moveItemRequest{SrcIid: srcIid, DstIid: dstIid, SrcSlot: srcSlot, DstSlot: dstSlot, Count: count}, nil
}

// unsubscribeInventoryRequest is OpUnsubscribeInventory's body.
type unsubscribeInventoryRequest struct {
	Iid geom.InventoryId
}

func decodeUnsubscribeInventory(body []byte) (unsubscribeInventoryRequest, error) {
	if len(body) < 4 {
		return unsubscribeInventoryRequest{}, ErrBadRequest
	}
	return unsubscribeInventoryRequest{Iid: geom.InventoryId(binary.LittleEndian.Uint32(body[0:4]))}, nil
}

// encodeInit builds OpInit's body: the client's pawn entity id and the
// reconnect ticket issued for this login.
func encodeInit(pawn geom.EntityId, ticket string) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(pawn))
	return append(out, writeString(ticket)...)
}

// encodeKick builds OpKick's body: a human-readable reason.
func encodeKick(reason string) []byte {
	return writeString(reason)
}

// encodeChatBroadcast builds OpChatBroadcast's body: "<name>\tmsg", per
// the original design's plain chat relay.
func encodeChatBroadcast(name, msg string) []byte {
	return writeString(name + "\t" + msg)
}
