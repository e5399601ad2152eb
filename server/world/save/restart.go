package save

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/riftkeep/outpostd/server/geom"
)

// onlineClientsFile is the sideband file recording which wire carried
// which client's traffic across a restart (SPEC_FULL.md §4.7's
// pre_restart/post_restart). It is not part of the object graph — it
// names wire ids, which are connection-lifetime, not stable — so it uses
// plain encoding/json rather than the snappy/zstd-framed object codec:
// there is nothing here worth a compression pass or a format-version
// gate, just a tiny one-shot handoff between two process images.
const onlineClientsFile = "online_clients.json"

// WriteOnlineClients records, for a restart in progress, which wire was
// carrying which client's traffic. An empty or nil online still writes
// (and then removes) the file so a stale mapping from an earlier restart
// never lingers.
func WriteOnlineClients(store *Store, online map[geom.WireId]string) error {
	path := filepath.Join(store.Dir().Root, onlineClientsFile)
	if len(online) == 0 {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	raw, err := json.Marshal(online)
	if err != nil {
		return err
	}
	return atomicWriteFile(path, raw)
}

// ReadOnlineClients loads the mapping WriteOnlineClients last wrote, then
// removes the file: it is consumed exactly once, by the next process's
// Bootstrap, after which any wire reconnecting is an ordinary fresh login
// again. A missing file (the common case — no restart is in progress)
// reports an empty, non-nil map rather than an error.
func ReadOnlineClients(store *Store) (map[geom.WireId]string, error) {
	path := filepath.Join(store.Dir().Root, onlineClientsFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[geom.WireId]string{}, nil
		}
		return nil, err
	}
	var online map[geom.WireId]string
	if err := json.Unmarshal(raw, &online); err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return online, nil
}
