package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when the database would live on a
// filesystem whose locking sqlite cannot rely on.
var ErrNetworkFilesystem = errors.New("sqlite requires a local filesystem")

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// checkLocalFilesystem inspects the nearest existing ancestor of path. A
// detector that cannot tell is not treated as a failure.
func checkLocalFilesystem(path string, detect func(string) (string, error)) error {
	existing, err := nearestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if err != nil {
		return nil
	}
	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("database path %q is on %s: %w; set state.path to local disk", path, fsType, ErrNetworkFilesystem)
	}
	return nil
}

func nearestExisting(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
