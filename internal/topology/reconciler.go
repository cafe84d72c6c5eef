package topology

import (
	"context"
	"errors"
	"log"

	"burrow/internal/registry"
)

// ReconcileReport summarizes what a cleanup pass did.
type ReconcileReport struct {
	OrphansStopped []string
	DriftRepaired  []string
}

// Reconcile compares the orchestrator's live running set against the
// registry and stops every container that has no registry entry. It never
// mutates the registry based on what is or is not running. It then repairs
// artifact drift by re-synthesizing routes and manifest from the registry
// snapshot, which is authoritative after an interrupted mutation.
func (d *Dispatcher) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	unlock, err := registry.AcquireLock(d.store.Path(), "cleanup")
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := d.store.Load()
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	var errs []error

	live, err := d.orch.ListRunning(ctx)
	if err != nil {
		errs = append(errs, &OrchestratorError{Op: "list running instances", Err: err})
	} else {
		for _, inst := range live {
			if snap.Exists(inst.Name) {
				continue
			}
			log.Printf("Reconciler: orphan cleanup: stopping %q (running but not registered)", inst.Name)
			if err := d.orch.Remove(ctx, inst.Name); err != nil {
				errs = append(errs, &OrchestratorError{Op: "stop orphan " + inst.Name, Err: err})
				continue
			}
			report.OrphansStopped = append(report.OrphansStopped, inst.Name)
		}
	}

	drift, err := d.Verify()
	if err != nil {
		errs = append(errs, err)
	} else if !drift.Clean() {
		log.Printf("Reconciler: repairing %d drift finding(s) from registry snapshot", len(drift.Details))
		if err := d.routes.Apply(snap.Entries()); err != nil {
			errs = append(errs, err)
		} else if err := d.manifest.Apply(snap.Entries()); err != nil {
			errs = append(errs, err)
		} else {
			report.DriftRepaired = drift.Details
		}
	}

	return report, errors.Join(errs...)
}
