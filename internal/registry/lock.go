package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LockHeldError reports that another invocation holds the mutation lock.
type LockHeldError struct {
	Operation string
	LockPath  string
	Holder    string
}

func (e *LockHeldError) Error() string {
	base := fmt.Sprintf("a %s operation is already in progress", strings.TrimSpace(e.Operation))
	if strings.TrimSpace(e.LockPath) != "" {
		base += fmt.Sprintf(" (lock=%s)", strings.TrimSpace(e.LockPath))
	}
	if strings.TrimSpace(e.Holder) != "" {
		base += fmt.Sprintf("; holder=%s", strings.TrimSpace(e.Holder))
	}
	return base
}

// AcquireLock takes the exclusive advisory lock guarding registry mutations.
// The lock is a file created with O_EXCL next to the registry, carrying the
// holder's pid and operation so a contending invocation can report who is in
// the way. The returned release func removes the lock file.
//
// Concurrent invocations serialize on this lock for the whole
// mutate-synthesize-link cycle; plain readers deliberately skip it.
func AcquireLock(registryPath, operation string) (func(), error) {
	lockPath := registryPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	payload := fmt.Sprintf("pid=%d operation=%s at=%s", os.Getpid(), strings.TrimSpace(operation), time.Now().Format(time.RFC3339))
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			holderBytes, _ := os.ReadFile(lockPath)
			return nil, &LockHeldError{
				Operation: operation,
				LockPath:  lockPath,
				Holder:    strings.TrimSpace(string(holderBytes)),
			}
		}
		return nil, fmt.Errorf("acquire mutation lock %s: %w", lockPath, err)
	}

	if _, err := lockFile.WriteString(payload + "\n"); err != nil {
		_ = lockFile.Close()
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("write mutation lock %s: %w", lockPath, err)
	}
	if err := lockFile.Close(); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("close mutation lock %s: %w", lockPath, err)
	}

	return func() {
		_ = os.Remove(lockPath)
	}, nil
}
