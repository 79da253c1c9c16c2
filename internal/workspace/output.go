package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteDocument stores a rendered palette document at path, creating parent
// directories as needed.
func WriteDocument(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("workspace: refusing to write empty document to %s", path)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("workspace: write %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes to a sibling temp file and renames it over path so
// readers never observe a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
