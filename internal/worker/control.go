package worker

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Worker control happens through two marker files next to the database:
// a pidfile while a pool is running, and a stopfile that "worker stop"
// creates from another process to request a graceful shutdown.
const (
	stopFileName = "queue.worker.stop"
	pidFileName  = "queue.worker.pid"
)

func stopFilePath(dataDir string) string { return filepath.Join(dataDir, stopFileName) }
func pidFilePath(dataDir string) string  { return filepath.Join(dataDir, pidFileName) }

// RequestStop asks a running pool to shut down after finishing in-flight jobs.
func RequestStop(dataDir string) error {
	f, err := os.Create(stopFilePath(dataDir))
	if err != nil {
		return err
	}
	return f.Close()
}

// ClearStop removes a leftover stop request, if any.
func ClearStop(dataDir string) error {
	err := os.Remove(stopFilePath(dataDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// StopRequested reports whether a stop has been requested out-of-band.
func StopRequested(dataDir string) bool {
	_, err := os.Stat(stopFilePath(dataDir))
	return err == nil
}

// WritePID records this process as the running worker pool.
func WritePID(dataDir string) error {
	return os.WriteFile(pidFilePath(dataDir), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// RemovePID clears the pidfile on shutdown.
func RemovePID(dataDir string) {
	_ = os.Remove(pidFilePath(dataDir))
}

// ReadPID returns the recorded pool pid, if a pool appears to be running.
func ReadPID(dataDir string) (int, bool) {
	data, err := os.ReadFile(pidFilePath(dataDir))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}
