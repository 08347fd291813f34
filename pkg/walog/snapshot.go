package walog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSnapshot marshals v to JSON, zstd-compresses it, and writes it to path
// atomically (write to a temp file, then rename) so a crash mid-write never
// leaves a half-written state file — the bank participant relies on this for
// its graceful-shutdown state file.
func WriteSnapshot(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	c, err := NewCompressor(3)
	if err != nil {
		return err
	}
	defer c.Close()

	compressed := c.Compress(data)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decompresses and unmarshals the snapshot at path into v. It
// returns (false, nil) if no snapshot file exists yet.
func ReadSnapshot(path string, v interface{}) (bool, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	c, err := NewCompressor(3)
	if err != nil {
		return false, err
	}
	defer c.Close()

	data, err := c.Decompress(compressed)
	if err != nil {
		return false, fmt.Errorf("snapshot file %s is corrupted: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return true, nil
}
