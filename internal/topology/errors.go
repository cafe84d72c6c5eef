package topology

import (
	"errors"
	"fmt"
	"strings"
)

// Input validation failures. Reported before any side effect.
var (
	ErrInvalidName  = errors.New("invalid instance name")
	ErrReservedName = errors.New("reserved instance name")
	ErrInvalidPort  = errors.New("port outside allowed range")
)

// PartialFailureError reports a mutation that failed between artifact writes.
// With RolledBack set the registry change was reverted automatically;
// otherwise the named artifacts are inconsistent and need manual repair.
type PartialFailureError struct {
	Op         string
	RolledBack bool
	Artifacts  []string
	Cause      error
	RevertErr  error
}

func (e *PartialFailureError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("%s failed: %v; registry change rolled back", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s failed: %v; rollback also failed (%v); manual intervention required, inconsistent artifacts: %s",
		e.Op, e.Cause, e.RevertErr, strings.Join(e.Artifacts, ", "))
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

// OrchestratorError reports a collaborator call that failed after the
// topology was committed. The registered topology stays authoritative; a
// later start retry succeeds without re-registering.
type OrchestratorError struct {
	Op  string
	Err error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("orchestrator %s failed: %v (registered topology unchanged; retry with the start command)", e.Op, e.Err)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// DriftError reports a broken bijection between the registry and its derived
// artifacts, typically left behind by an interrupted mutation.
type DriftError struct {
	Details []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("topology drift detected; run cleanup to repair: %s", strings.Join(e.Details, "; "))
}
