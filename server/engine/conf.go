// Package engine wires together the world, vision, physics, chunk
// lifecycle, and timer subsystems into the single-threaded event loop
// described in SPEC_FULL.md §5: one goroutine multiplexing wire input,
// timer wakeups, and background chunk-generation completions, driving
// every mutation through a single world.Fragment so that no lock is ever
// needed over world state itself.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml"
)

// Config holds the fully resolved settings an Engine is constructed from.
// It is produced from a UserConfig via UserConfig.Config, mirroring the
// teacher's Config/UserConfig split (server/conf.go): UserConfig is the
// serialisable on-disk shape, Config is what the runtime actually uses
// once defaults have been filled in and paths resolved.
type Config struct {
	Log *slog.Logger

	// DataDir holds the static data tables (blocks.json, items.json,
	// recipes.json, structures.json, animations.json, loot_tables.json).
	DataDir string
	// SaveDir holds the per-object savefiles written by server/world/save.
	SaveDir string
	// AuthDBPath is the goleveldb directory backing the auth package's
	// registered-account store.
	AuthDBPath string

	// MaxPlayers caps concurrent logged-in clients; 0 means unlimited.
	MaxPlayers int
	// ChunkWorkers bounds the chunks.Manager background load pool.
	// NewEngine uses the value as given; UserConfig.Config is what
	// replaces a value of 0 or less with max(2, GOMAXPROCS).
	ChunkWorkers int

	// TicketSecret signs the session tickets auth issues on login, so a
	// client can reconnect without resending its name and secret. It must
	// be stable across restarts for tickets to remain valid.
	TicketSecret []byte

	// WhitelistPath is the TOML whitelist file resolved by
	// UserConfig.Config (empty when the whitelist is disabled). The engine
	// does not read this file, and registration is not restricted by it.
	WhitelistPath string
}

// UserConfig is the on-disk TOML configuration, analogous to the
// teacher's UserConfig (server/conf.go): plain, serialisable fields
// grouped by concern, converted to a Config by UserConfig.Config.
type UserConfig struct {
	Server struct {
		// MaxPlayers is the maximum number of concurrent clients. 0 means
		// unlimited.
		MaxPlayers int
		// ChunkWorkers bounds background terrain-chunk load concurrency.
		// 0 selects a default based on the host's CPU count.
		ChunkWorkers int
	}
	Data struct {
		// Dir is the directory holding the static data tables.
		Dir string
	}
	World struct {
		// SaveDir is the directory savefiles are read from and written
		// to.
		SaveDir string
	}
	Auth struct {
		// DBDir is the goleveldb directory storing registered accounts.
		DBDir string
		// TicketSecretHex is the hex-encoded HMAC key used to sign
		// session tickets. Left empty, a random key is generated on
		// first run and is therefore NOT stable across restarts; set it
		// explicitly once the server is live so reconnecting clients'
		// tickets stay valid.
		TicketSecretHex string
	}
	Whitelist struct {
		// Enabled controls whether File is resolved into
		// Config.WhitelistPath; registration itself is not restricted by
		// the list.
		Enabled bool
		// File is the path to the whitelist TOML file, in the same
		// "players" array format as the teacher's whitelist.go.
		File string
	}
}

// DefaultConfig returns a UserConfig with every field filled to a sensible
// default, mirroring the teacher's DefaultConfig (server/conf.go).
func DefaultConfig() UserConfig {
	var c UserConfig
	c.Server.MaxPlayers = 0
	c.Server.ChunkWorkers = 0
	c.Data.Dir = "data"
	c.World.SaveDir = "save"
	c.Auth.DBDir = "save/auth"
	c.Auth.TicketSecretHex = ""
	c.Whitelist.Enabled = false
	c.Whitelist.File = "whitelist.toml"
	return c
}

// LoadUserConfig reads and decodes a TOML configuration file at path,
// creating it from DefaultConfig if it does not already exist — the same
// create-if-missing behaviour as the teacher's LoadWhitelist.
func LoadUserConfig(path string) (UserConfig, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return UserConfig{}, fmt.Errorf("engine: read config: %w", err)
		}
		uc := DefaultConfig()
		if err := writeUserConfig(path, uc); err != nil {
			return UserConfig{}, err
		}
		return uc, nil
	}
	uc := DefaultConfig()
	if len(contents) != 0 {
		if err := toml.Unmarshal(contents, &uc); err != nil {
			return UserConfig{}, fmt.Errorf("engine: decode config: %w", err)
		}
	}
	return uc, nil
}

func writeUserConfig(path string, uc UserConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return fmt.Errorf("engine: create config directory: %w", err)
		}
	}
	encoded, err := toml.Marshal(uc)
	if err != nil {
		return fmt.Errorf("engine: encode config: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return fmt.Errorf("engine: write config: %w", err)
	}
	return nil
}

// Config converts a UserConfig into a Config rooted at baseDir, resolving
// relative paths and filling in runtime defaults the on-disk format
// leaves implicit (log, chunk worker count). Mirrors UserConfig.Config in
// the teacher's server/conf.go.
func (uc UserConfig) Config(baseDir string, log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	conf := Config{
		Log:           log,
		DataDir:       resolvePath(baseDir, uc.Data.Dir),
		SaveDir:       resolvePath(baseDir, uc.World.SaveDir),
		AuthDBPath:    resolvePath(baseDir, uc.Auth.DBDir),
		MaxPlayers:    uc.Server.MaxPlayers,
		ChunkWorkers:  uc.Server.ChunkWorkers,
		WhitelistPath: "",
	}
	if conf.ChunkWorkers <= 0 {
		conf.ChunkWorkers = max(2, runtime.GOMAXPROCS(0))
	}
	if uc.Whitelist.Enabled {
		conf.WhitelistPath = resolvePath(baseDir, uc.Whitelist.File)
	}
	secret := strings.TrimSpace(uc.Auth.TicketSecretHex)
	if secret == "" {
		log.Warn("engine: no auth.TicketSecretHex configured, generating a random one for this run; reconnect tickets will not survive a restart")
		conf.TicketSecret = randomSecret()
	} else {
		decoded, err := decodeHex(secret)
		if err != nil {
			return Config{}, fmt.Errorf("engine: decode auth.TicketSecretHex: %w", err)
		}
		conf.TicketSecret = decoded
	}
	return conf, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
