package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/config"
)

const (
	pidFilePermissions = 0o644
	pidDirPermissions  = 0o755
	pidFileName        = "serve.pid"
)

// serverRecord is what a running "serve" writes to its PID file.
type serverRecord struct {
	PID     int       `json:"pid"`
	Mode    string    `json:"mode"`
	Addr    string    `json:"addr"`
	Started time.Time `json:"started"`
}

// defaultPIDPath is where "serve" records itself for "reload".
func defaultPIDPath() string {
	dir := config.DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, pidFileName)
}

// acquirePIDFile locks path exclusively and writes rec into it. The lock is
// held until release, which also removes the file. A lock held elsewhere
// means another server owns the path.
func acquirePIDFile(path string, rec serverRecord) (release func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	fail := func(err error) (func(), error) {
		f.Close()

		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fail(fmt.Errorf("another gateway server is already running (could not lock %s)", path))
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fail(fmt.Errorf("encoding PID file: %w", err))
	}

	if err := f.Truncate(0); err != nil {
		return fail(fmt.Errorf("truncating PID file: %w", err))
	}

	if _, err := f.WriteAt(append(data, '\n'), 0); err != nil {
		return fail(fmt.Errorf("writing PID file: %w", err))
	}

	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("syncing PID file: %w", err))
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

func readServerRecord(path string) (serverRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return serverRecord{}, fmt.Errorf("reading PID file: %w", err)
	}

	var rec serverRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return serverRecord{}, fmt.Errorf("invalid PID file %s: %w", path, err)
	}

	if rec.PID <= 0 {
		return serverRecord{}, fmt.Errorf("invalid PID file %s: pid %d", path, rec.PID)
	}

	return rec, nil
}

// signalServer sends sig to the server recorded at path. A record left by
// a dead process is removed.
func signalServer(path string, sig syscall.Signal) (serverRecord, error) {
	rec, err := readServerRecord(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return serverRecord{}, fmt.Errorf("no running gateway server found (no PID file at %s)", path)
		}

		return serverRecord{}, err
	}

	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return serverRecord{}, fmt.Errorf("finding process %d: %w", rec.PID, err)
	}

	// Signal 0 checks liveness.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(path)

		return serverRecord{}, fmt.Errorf("gateway server (PID %d) is not running (stale PID file removed)", rec.PID)
	}

	if err := proc.Signal(sig); err != nil {
		return serverRecord{}, fmt.Errorf("sending %s to gateway server (PID %d): %w", sig, rec.PID, err)
	}

	return rec, nil
}
