//go:build windows

package lockfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows has no flock; LockFileEx on a one-byte range at offset zero is
// the functional equivalent for a sidecar whose contents never matter.

// tryLock attempts a non-blocking exclusive range lock on the sidecar.
func tryLock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
}

// unlock releases the range lock held on the sidecar.
func unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
