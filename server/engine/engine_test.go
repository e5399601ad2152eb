package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/riftkeep/outpostd/server/geom"
	"github.com/riftkeep/outpostd/server/phys"
	"github.com/riftkeep/outpostd/server/wire"
	"github.com/riftkeep/outpostd/server/world"
	"github.com/riftkeep/outpostd/server/world/save"
)

// fakeTemplates/fakeShapes are the minimal world.TemplateTable and
// phys.BlockShapeTable a test engine needs: no structures, flat-terrain
// shapes resolved directly by provider.go's blockAir/blockGround/blockRise
// constants.
type fakeTemplates struct{}

func (fakeTemplates) Template(world.TemplateId) (*phys.StructureTemplate, bool) { return nil, false }

type fakeShapes struct{}

func (fakeShapes) ShapeOf(id phys.BlockId) phys.Shape {
	switch id {
	case blockGround, blockRise:
		return phys.Solid
	default:
		return phys.Empty
	}
}

// fakeAuth is an in-memory stand-in for the auth package, good enough to
// drive Register/Login through the engine without a goleveldb directory.
type fakeAuth struct {
	accounts map[string]string
	tickets  map[string]string
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{accounts: map[string]string{}, tickets: map[string]string{}}
}

func (a *fakeAuth) Register(name, secret string) error {
	if _, ok := a.accounts[name]; ok {
		return errors.New("already registered")
	}
	a.accounts[name] = secret
	return nil
}

func (a *fakeAuth) Verify(name, secret string) (bool, error) {
	want, ok := a.accounts[name]
	return ok && want == secret, nil
}

func (a *fakeAuth) IssueTicket(name string) (string, error) {
	t := "ticket-" + name
	a.tickets[t] = name
	return t, nil
}

func (a *fakeAuth) VerifyTicket(ticket string) (string, bool) {
	name, ok := a.tickets[ticket]
	return name, ok
}

func newTestEngine(t *testing.T, auth *fakeAuth, frames []byte) (*Engine, *bytes.Buffer, *save.Store) {
	t.Helper()
	store, err := save.Open(t.TempDir())
	if err != nil {
		t.Fatalf("save.Open: %v", err)
	}
	t.Cleanup(store.Close)

	conf := Config{Log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})), ChunkWorkers: 2}
	decoder := wire.NewDecoder(bytes.NewReader(frames))
	var out bytes.Buffer
	e := NewEngine(conf, store, fakeTemplates{}, fakeShapes{}, auth, decoder, &out, 1)
	if err := e.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return e, &out, store
}

func frame(wid geom.WireId, opcode uint16, body []byte) []byte {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, wire.Frame{Wire: wid, Opcode: opcode, Body: body}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func addClientBody(wid geom.WireId) []byte {
	b := make([]byte, 2)
	putU16(b, uint16(wid))
	return b
}

func registerBody(name, secret string) []byte {
	return append(writeString(name), writeString(secret)...)
}

func loginBody(name, secret, ticket string) []byte {
	out := append([]byte{}, writeString(name)...)
	out = append(out, writeString(secret)...)
	out = append(out, writeString(ticket)...)
	return out
}

// TestEngineLoginLogoutPersistsClient drives a full register+login, then
// lets the input stream end (simulating the wire closing), and checks
// that shutdown's logout path has written the client's savefile —
// Testable Scenario 1 from SPEC_FULL.md §8.
func TestEngineLoginLogoutPersistsClient(t *testing.T) {
	var input bytes.Buffer
	input.Write(frame(geom.ControlWireId, ctrlAddClient, addClientBody(1)))
	input.Write(frame(1, opRegister, registerBody("alice", "secret")))
	input.Write(frame(1, opLogin, loginBody("alice", "secret", "")))

	auth := newFakeAuth()
	e, _, store := newTestEngine(t, auth, input.Bytes())

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	path := store.Dir().ClientPath("alice")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected savefile %s to exist after shutdown: %v", path, err)
	}
}

// TestEngineRestartKeepsClientResidentAndReattaches exercises SPEC_FULL.md
// §4.7: a restart persists the logged-in client, records its wire, and a
// fresh process's Bootstrap + ctrlAddClient on the same wire id silently
// reattaches it with no Login frame.
func TestEngineRestartKeepsClientResidentAndReattaches(t *testing.T) {
	dir := t.TempDir()
	auth := newFakeAuth()

	var input bytes.Buffer
	input.Write(frame(geom.ControlWireId, ctrlAddClient, addClientBody(1)))
	input.Write(frame(1, opRegister, registerBody("alice", "secret")))
	input.Write(frame(1, opLogin, loginBody("alice", "secret", "")))
	input.Write(frame(geom.ControlWireId, ctrlRestart, nil))

	store, err := save.Open(dir)
	if err != nil {
		t.Fatalf("save.Open: %v", err)
	}
	conf := Config{Log: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})), ChunkWorkers: 2}
	decoder := wire.NewDecoder(&input)
	var out bytes.Buffer
	e := NewEngine(conf, store, fakeTemplates{}, fakeShapes{}, auth, decoder, &out, 1)
	if err := e.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "online_clients.json")); err != nil {
		t.Fatalf("expected online_clients.json after restart: %v", err)
	}

	// A fresh process: new Store, new Engine, same data directory.
	store2, err := save.Open(dir)
	if err != nil {
		t.Fatalf("save.Open (2nd process): %v", err)
	}
	t.Cleanup(store2.Close)
	var input2 bytes.Buffer
	input2.Write(frame(geom.ControlWireId, ctrlAddClient, addClientBody(1)))
	decoder2 := wire.NewDecoder(&input2)
	var out2 bytes.Buffer
	e2 := NewEngine(conf, store2, fakeTemplates{}, fakeShapes{}, auth, decoder2, &out2, 1)
	if err := e2.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap (2nd process): %v", err)
	}
	if len(e2.restartPending) != 1 || e2.restartPending[1] != "alice" {
		t.Fatalf("restartPending = %v, want {1: alice}", e2.restartPending)
	}
	if err := e2.Run(context.Background()); err != nil {
		t.Fatalf("Run (2nd process): %v", err)
	}
	if _, ok := e2.router.ClientForWire(1); ok {
		t.Fatal("router state should be gone after shutdown's logout pass")
	}
}

// TestEngineChatSlashCommandNotBroadcast checks that a "/"-prefixed chat
// message is dispatched as a server-side command (SPEC_FULL.md §12)
// rather than broadcast to other clients.
func TestEngineChatSlashCommandNotBroadcast(t *testing.T) {
	var input bytes.Buffer
	input.Write(frame(geom.ControlWireId, ctrlAddClient, addClientBody(1)))
	input.Write(frame(1, opRegister, registerBody("alice", "secret")))
	input.Write(frame(1, opLogin, loginBody("alice", "secret", "")))
	input.Write(frame(1, opChat, encodeChatRequestForTest("/who")))

	auth := newFakeAuth()
	e, out, _ := newTestEngine(t, auth, input.Bytes())
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, f := range decodeAllFrames(t, out.Bytes()) {
		if f.Opcode != opChatBroadcast {
			continue
		}
		msg, _, err := readString(f.Body)
		if err != nil {
			t.Fatalf("readString: %v", err)
		}
		if strings.HasPrefix(msg, "alice\t") {
			t.Fatalf("slash command must not be broadcast as chat from the issuing client, got %q", msg)
		}
	}
}

func encodeChatRequestForTest(text string) []byte {
	return writeString(text)
}

func decodeAllFrames(t *testing.T, raw []byte) []wire.Frame {
	t.Helper()
	var out []wire.Frame
	r := bytes.NewReader(raw)
	for {
		f, err := wire.ReadFrame(r)
		if err != nil {
			break
		}
		out = append(out, f)
	}
	return out
}
