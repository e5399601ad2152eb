package save

import (
	"encoding/json"
	"os"
)

// CheckpointMarker records which engine run last wrote a checkpoint, so an
// operator inspecting a save directory after a crash can tell whether the
// files on disk came from the run they expect.
type CheckpointMarker struct {
	RunId     string
	UnixMilli int64
}

// WriteCheckpointMarker overwrites the misc checkpoint marker file with m.
// Called once per checkpoint (SPEC_FULL.md §4.7), not once per engine run,
// so UnixMilli always reflects the most recent save.
func WriteCheckpointMarker(store *Store, m CheckpointMarker) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return atomicWriteFile(store.Dir().MiscPath(), raw)
}

// ReadCheckpointMarker loads the marker left by the last WriteCheckpointMarker
// call, if any. A missing file (a save directory that has never been
// checkpointed) reports the zero CheckpointMarker, not an error.
func ReadCheckpointMarker(store *Store) (CheckpointMarker, error) {
	raw, err := os.ReadFile(store.Dir().MiscPath())
	if err != nil {
		if os.IsNotExist(err) {
			return CheckpointMarker{}, nil
		}
		return CheckpointMarker{}, err
	}
	var m CheckpointMarker
	if err := json.Unmarshal(raw, &m); err != nil {
		return CheckpointMarker{}, err
	}
	return m, nil
}
