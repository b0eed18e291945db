package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"firlower/internal/firrtl"
)

// ReadFile decodes the snapshot stored at path.
func ReadFile(path string) (c *firrtl.Circuit, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	c, err = Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// WriteFile encodes c to path through a temporary file in the same
// directory, so readers never observe a partial snapshot.
func WriteFile(path string, c *firrtl.Circuit) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := Encode(w, c); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := w.Flush(); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(tmp.Name(), path)
}
