package file

import (
	"os"
	"path/filepath"
	"time"
)

// FindOlderThan lists regular files under dir whose modification time is
// before cutoff.
func FindOlderThan(dir string, cutoff time.Time) ([]string, error) {
	var stale []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if info.Mode().IsRegular() && info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})

	return stale, err
}

// RemoveOlderThan deletes the files FindOlderThan reports and returns how
// many were removed. A missing dir is not an error.
func RemoveOlderThan(dir string, cutoff time.Time) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	stale, err := FindOlderThan(dir, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Touch bumps the modification time of an existing file.
func Touch(path string, now time.Time) error {
	return os.Chtimes(path, now, now)
}
