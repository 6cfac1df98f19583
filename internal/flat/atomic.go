package flat

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/hpungsan/chronicler/internal/errors"
)

// WriteFileAtomic writes data to a temp file beside path and renames it into place,
// so readers see either the old or the new contents. The existing file survives a
// failed write. Symlinks at path are refused.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create temp file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close temp file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("cannot write to symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			// Rename cannot replace an existing file there; swap it out first.
			if rmErr := os.Remove(path); rmErr == nil {
				err = os.Rename(tempPath, path)
			}
		}
		if err != nil {
			return errors.NewInternal(fmt.Errorf("failed to finalize write: %w", err))
		}
	}

	success = true
	return nil
}

// ReadFileNoFollow reads a whole file, refusing symlinks at the final component.
// A missing file is reported as FILE_NOT_FOUND.
func ReadFileNoFollow(path string) ([]byte, error) {
	f, err := openFileNoFollowRead(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
