package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// pidFilePath returns "<tmp>/<backend>-service.pid" per spec.md §4.4
// "Start contract".
func pidFilePath(backend string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-service.pid", backend))
}

func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("supervisor: malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

func removePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
