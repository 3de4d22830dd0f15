//go:build !unix

package lock

import "os"

// Without flock the PID file is written but not exclusive.
func tryLock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
