// Package lockfile guards a BotRouter state directory so that only one server
// writes its SQLite database at a time. The lock is an flock on a file in the
// directory and is dropped by the kernel when the process exits.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "botrouter.lock"

// ErrHeld is wrapped by HeldError.
var ErrHeld = errors.New("state directory is locked by another BotRouter server")

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID     int
	Addr    string
	Started time.Time
}

// Alive reports whether the owner process still exists.
func (o Owner) Alive() bool {
	if o.PID <= 0 {
		return false
	}
	p, err := os.FindProcess(o.PID)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func (o Owner) String() string {
	if o.PID == 0 {
		return "unknown owner"
	}
	state := "running"
	if !o.Alive() {
		state = "not running"
	}
	s := fmt.Sprintf("pid %d (%s)", o.PID, state)
	if o.Addr != "" {
		s += ", listening on " + o.Addr
	}
	if !o.Started.IsZero() {
		s += ", started " + o.Started.Format(time.RFC3339)
	}
	return s
}

// HeldError is returned when the directory is already locked.
type HeldError struct {
	Path  string
	Owner Owner
	Cause error
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("%v: %s held by %s; remove the file only if that server is gone", ErrHeld, e.Path, e.Owner)
}

func (e *HeldError) Unwrap() []error { return []error{ErrHeld, e.Cause} }

// Lock is an acquired state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire locks stateDir, creating it if needed, and records the current
// process and the address it serves.
func Acquire(stateDir, addr string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		owner, _ := ReadOwner(path)
		slog.Error("lockfile.Acquire: state directory already locked", "path", path, "owner", owner.String())
		return nil, &HeldError{Path: path, Owner: owner, Cause: err}
	}

	if err := writeOwner(f, Owner{PID: os.Getpid(), Addr: addr, Started: time.Now().UTC()}); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to write lock file %s: %w", path, err)
	}
	slog.Info("lockfile.Acquire: state directory locked", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	content := fmt.Sprintf("pid=%d\naddr=%s\nstarted=%s\n", o.PID, o.Addr, o.Started.Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile.writeOwner: sync failed", "error", err)
	}
	return nil
}

// ReadOwner parses the owner recorded in the lock file at path.
func ReadOwner(path string) (Owner, error) {
	f, err := os.Open(path)
	if err != nil {
		return Owner{}, err
	}
	defer f.Close()

	var o Owner
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "addr":
			o.Addr = value
		case "started":
			o.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o, sc.Err()
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "path", l.path, "error", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: failed to unlock", "path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Debug("Lock.Release: state directory unlocked", "path", l.path)
	return err
}
