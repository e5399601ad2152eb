package engine

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/riftkeep/outpostd/server/geom"
)

// Dispatch implements console.Dispatcher: it enqueues an admin command
// line onto the engine's repl channel, handled on the event-loop
// goroutine by handleReplCommand (SPEC_FULL.md §4.7's ReplCommand
// control event). Safe to call from the console's own goroutine — this
// and chunkReady (for background chunk loads) are the two channels in the
// package that cross from another goroutine into the engine.
func (e *Engine) Dispatch(line string) {
	e.replCmds <- line
}

// handleReplCommand executes one admin console line. Unlike a client
// chat command, it runs with no client identity attached and may alter
// process lifecycle (shutdown/restart).
func (e *Engine) handleReplCommand(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "who":
		e.logAdmin("who", strings.Join(e.onlineNames(), ", "))
	case "kick":
		if len(fields) < 2 {
			e.logAdmin("kick", "usage: kick <name>")
			return
		}
		e.adminKick(fields[1])
	case "save":
		if err := e.checkpoint(); err != nil {
			e.log.Error("engine: admin save failed", "err", err)
			return
		}
		e.logAdmin("save", "checkpoint written")
	case "shutdown":
		if err := e.shutdown(); err != nil {
			e.log.Error("engine: admin shutdown failed", "err", err)
		}
	case "restart":
		if err := e.restart(); err != nil {
			e.log.Error("engine: admin restart failed", "err", err)
		}
	default:
		e.logAdmin(fields[0], "unknown command")
	}
}

func (e *Engine) logAdmin(cmd, result string) {
	e.log.Info("engine: admin command", "cmd", cmd, "result", result)
}

func (e *Engine) onlineNames() []string {
	var names []string
	for _, cid := range e.router.OnlineClients() {
		if c, ok := e.w.Clients.Get(cid); ok {
			names = append(names, c.Name)
		}
	}
	slices.Sort(names)
	return names
}

func (e *Engine) adminKick(name string) {
	var target geom.WireId
	var found bool
	for wid, cid := range e.router.OnlineClients() {
		c, ok := e.w.Clients.Get(cid)
		if !ok || c.Name != name {
			continue
		}
		target, found = wid, true
		break
	}
	if !found {
		e.logAdmin("kick", "no such client: "+name)
		return
	}
	e.router.SendControl(target, opKick, encodeKick("kicked by admin"))
	e.handleClientDisconnect(target)
	e.logAdmin("kick", name)
}
