package backup

import (
	"encoding/json"
	"os"
	"path/filepath"

	"counseld-go/internal/counsel"
	"counseld-go/internal/model"
)

// stateFile persists the scheduler's BackupState as JSON at a fixed path.
// Reads degrade to the empty state on any failure; writes are best effort.
// Losing the last transition is acceptable, losing the data itself is not.
type stateFile struct {
	path   string
	logger counsel.Logger
}

func newStateFile(path string, logger counsel.Logger) *stateFile {
	return &stateFile{path: path, logger: logger}
}

// load reads the persisted state. A missing or corrupt file starts clean.
func (f *stateFile) load() model.BackupState {
	var st model.BackupState
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("backup state unreadable, starting clean", "path", f.path, "error", err)
		}
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		f.logger.Warn("backup state corrupt, starting clean", "path", f.path, "error", err)
		return model.BackupState{}
	}
	return st
}

// save writes the state after a transition. Failures are logged and
// swallowed.
func (f *stateFile) save(st model.BackupState) {
	data, err := json.Marshal(st)
	if err != nil {
		f.logger.Warn("encoding backup state failed", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		f.logger.Warn("creating backup state directory failed", "error", err)
		return
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		f.logger.Warn("writing backup state failed", "path", f.path, "error", err)
	}
}
