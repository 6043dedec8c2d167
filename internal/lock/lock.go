// Package lock guards against two glue processes driving the same
// device. The lock file lives in the glue's state directory and holds
// the owner's PID.
package lock

import (
	"fmt"
	"os"
	"syscall"
)

type FileLock struct {
	path string
	file *os.File
}

func New(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock acquires the lock without blocking. Failure usually means
// another glue already owns the device.
func (fl *FileLock) TryLock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire lock (another glue may be driving this device): %w", err)
	}

	if err := f.Truncate(0); err != nil {
		fl.release(f)
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		fl.release(f)
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		fl.release(f)
		return fmt.Errorf("write PID to lock file: %w", err)
	}

	fl.file = f
	return nil
}

func (fl *FileLock) release(f *os.File) {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
}

// Unlock releases and removes the lock file. Safe to call when the lock
// was never acquired.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		fl.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := fl.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	os.Remove(fl.path)
	fl.file = nil
	return nil
}
