package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() serverRecord {
	return serverRecord{
		PID:     os.Getpid(),
		Mode:    "api",
		Addr:    "127.0.0.1:3000",
		Started: time.Date(2025, time.May, 4, 9, 30, 0, 0, time.UTC),
	}
}

func writeRecord(t *testing.T, path string, rec serverRecord) {
	t.Helper()

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestAcquirePIDFile_WritesRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "serve.pid")

	release, err := acquirePIDFile(path, testRecord())
	require.NoError(t, err)

	defer release()

	got, err := readServerRecord(path)
	require.NoError(t, err)
	assert.Equal(t, testRecord(), got)
}

func TestAcquirePIDFile_SecondServerRefused(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "serve.pid")

	release, err := acquirePIDFile(path, testRecord())
	require.NoError(t, err)

	defer release()

	again, err := acquirePIDFile(path, testRecord())
	require.Error(t, err)
	assert.Nil(t, again)
	assert.Contains(t, err.Error(), "already running")

	// The first record survives the refused attempt.
	got, err := readServerRecord(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3000", got.Addr)
}

func TestAcquirePIDFile_ReleaseRemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "serve.pid")

	release, err := acquirePIDFile(path, testRecord())
	require.NoError(t, err)

	release()

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// The path can be taken again.
	release, err = acquirePIDFile(path, testRecord())
	require.NoError(t, err)
	release()
}

func TestAcquirePIDFile_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := acquirePIDFile("", testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestReadServerRecord_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "12345\n"},
		{"missing pid", `{"mode":"api"}`},
		{"negative pid", `{"pid":-4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "serve.pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := readServerRecord(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid PID file")
		})
	}
}

func TestSignalServer_NoPIDFile(t *testing.T) {
	t.Parallel()

	_, err := signalServer(filepath.Join(t.TempDir(), "serve.pid"), syscall.SIGHUP)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no running gateway server")
}

func TestSignalServer_StaleRecordRemoved(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "serve.pid")

	rec := testRecord()
	rec.PID = 999999999
	writeRecord(t, path, rec)

	_, err := signalServer(path, syscall.SIGHUP)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSignalServer_DeliversSignal(t *testing.T) {
	t.Parallel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)

	defer signal.Stop(sigCh)

	path := filepath.Join(t.TempDir(), "serve.pid")
	writeRecord(t, path, testRecord())

	rec, err := signalServer(path, syscall.SIGUSR1)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "api", rec.Mode)

	select {
	case sig := <-sigCh:
		assert.Equal(t, syscall.SIGUSR1, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}
