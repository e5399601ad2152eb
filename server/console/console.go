// Package console is the interactive admin surface described in
// SPEC_FULL.md §10: a line-oriented command reader that dispatches every
// non-empty line as a ReplCommand control event into the engine's
// event loop, adapted from the teacher's server/console package (which
// drove dragonfly's command.Source/world.Tx machinery) onto this repo's
// much smaller admin vocabulary.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

const (
	defaultPromptPrefix = "> "
	maxHistoryEntries   = 128
)

// Dispatcher receives one admin command line at a time, already
// trimmed and non-empty. The engine implements this by enqueuing the
// line onto its repl-command channel, handled on its single event-loop
// goroutine (see engine/admin.go's handleReplCommand).
type Dispatcher interface {
	Dispatch(line string)
}

// Console reads admin command lines from an io.Reader (os.Stdin by
// default) and hands each one to a Dispatcher.
type Console struct {
	sink    Dispatcher
	log     *slog.Logger
	reader  io.Reader
	history []string
}

// New returns a Console that dispatches commands to sink, reading from
// os.Stdin and logging through log.
func New(sink Dispatcher, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{
		sink:   sink,
		log:    log,
		reader: os.Stdin,
	}
}

// WithReader sets a custom reader for the console's input, so it can be
// driven from something other than os.Stdin (tests, a supervisor pipe).
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run consumes commands until ctx is cancelled or the reader hits EOF.
// Piped input (anything but the literal os.Stdin) uses a plain scanner;
// an interactive terminal gets the full go-prompt experience with
// history and tab completion, mirroring the teacher's split.
func (c *Console) Run(ctx context.Context) {
	if c.reader != os.Stdin {
		c.runScanner(ctx)
		return
	}
	c.runInteractive(ctx)
}

func (c *Console) runScanner(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console: input error", "err", err)
			}
			return
		}
		c.execute(scanner.Text())
	}
}

func (c *Console) runInteractive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := prompt.Input(defaultPromptPrefix, c.complete,
			prompt.OptionTitle("outpostd console"),
			prompt.OptionHistory(c.history),
			prompt.OptionPrefix(defaultPromptPrefix),
			prompt.OptionCompletionOnDown(),
			prompt.OptionMaxSuggestion(12),
		)
		c.execute(line)
	}
}

func (c *Console) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	c.history = append(c.history, line)
	if len(c.history) > maxHistoryEntries {
		c.history = c.history[len(c.history)-maxHistoryEntries:]
	}
	c.sink.Dispatch(line)
}

// adminCommand documents one recognized command for tab completion; the
// actual dispatch and validation happens engine-side (handleReplCommand),
// since only the engine's single goroutine may read world state to
// validate an argument like a client name.
type adminCommand struct {
	name  string
	usage string
}

var adminCommands = []adminCommand{
	{"who", "who - list connected clients"},
	{"kick", "kick <name> - disconnect a client"},
	{"save", "save - checkpoint the world immediately"},
	{"shutdown", "shutdown - persist and stop the process"},
	{"restart", "restart - persist, keep clients resident, and re-exec"},
}

func (c *Console) complete(doc prompt.Document) []prompt.Suggest {
	text := doc.TextBeforeCursor()
	if strings.Contains(strings.TrimLeft(text, " "), " ") {
		return nil
	}
	word := doc.GetWordBeforeCursor()
	suggestions := make([]prompt.Suggest, 0, len(adminCommands))
	for _, cmd := range adminCommands {
		suggestions = append(suggestions, prompt.Suggest{Text: cmd.name, Description: cmd.usage})
	}
	sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].Text < suggestions[j].Text })
	return prompt.FilterHasPrefix(suggestions, word, true)
}

// Usage returns the one-line help text for every recognized command, each
// indented by two spaces and joined with newlines.
func Usage() string {
	lines := make([]string, 0, len(adminCommands))
	for _, cmd := range adminCommands {
		lines = append(lines, fmt.Sprintf("  %s", cmd.usage))
	}
	return strings.Join(lines, "\n")
}
