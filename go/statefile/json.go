package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveJSON atomically replaces |path| with the JSON encoding of |v|.
// The document is staged in a temp file within the same directory and
// renamed over the target, so no reader ever observes a partial write.
// Callers mutating shared state must hold the exclusive lease for |path|.
func SaveJSON(path string, v interface{}) error {
	var data, err = json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	var dir = filepath.Dir(path)
	if err = os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("staging temp file: %w", err)
	}
	defer func() {
		// No-ops once the rename has happened.
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err = tmp.Chmod(FileMode); err != nil {
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}

// LoadJSON decodes |path| into |v|. A missing file surfaces as
// os.ErrNotExist; malformed content surfaces as a wrapped decode error
// which callers typically log and replace with an empty structure.
func LoadJSON(path string, v interface{}) error {
	var data, err = os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return os.ErrNotExist
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
