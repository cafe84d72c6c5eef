// Package topology sequences every registry mutation: validate, mutate the
// registry, re-synthesize the routing block and the compose manifest from the
// new snapshot, then invoke the orchestrator. The registry is the single
// source of truth; the other two artifacts are always derived from one
// snapshot of it.
package topology

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"burrow/internal/manifest"
	"burrow/internal/orchestrator"
	"burrow/internal/ports"
	"burrow/internal/registry"
	"burrow/internal/routes"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Artifact names used in partial-failure and drift reports.
const (
	artifactRegistry = "registry"
	artifactRoutes   = "routing config"
	artifactManifest = "compose manifest"
)

// routeDefaultName is the fallback line of the managed route block.
const routeDefaultName = "default"

// Orchestrator is the slice of the collaborator the dispatcher needs: start
// after add, stop+remove after remove and for orphans, and the live running
// set for reconciliation.
type Orchestrator interface {
	Start(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	ListRunning(ctx context.Context) ([]orchestrator.Instance, error)
}

// Registrar manages the optional per-instance subdomain DNS records.
type Registrar interface {
	EnsureRecord(ctx context.Context, name string) (string, error)
	DeleteRecord(ctx context.Context, recordID, name string) error
}

// Dispatcher performs validated add/remove mutations and reconciliation.
type Dispatcher struct {
	store     *registry.Store
	allocator *ports.Allocator
	routes    *routes.Synthesizer
	manifest  *manifest.Linker
	orch      Orchestrator
	dns       Registrar
	dataRoot  string
}

// NewDispatcher wires the dispatcher. dns may be a disabled registrar but
// must not be nil.
func NewDispatcher(store *registry.Store, allocator *ports.Allocator, synth *routes.Synthesizer, linker *manifest.Linker, orch Orchestrator, dns Registrar, dataRoot string) *Dispatcher {
	return &Dispatcher{
		store:     store,
		allocator: allocator,
		routes:    synth,
		manifest:  linker,
		orch:      orch,
		dns:       dns,
		dataRoot:  dataRoot,
	}
}

// Store exposes the registry store for read-only callers (list/status).
func (d *Dispatcher) Store() *registry.Store {
	return d.store
}

// Add registers an instance, synthesizes both derived artifacts and starts
// the container. With explicitPort 0 a port is drawn from the allocator.
func (d *Dispatcher) Add(ctx context.Context, name string, explicitPort int) (registry.Entry, error) {
	if !nameRE.MatchString(name) {
		return registry.Entry{}, fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, nameRE.String())
	}
	// "default" collides with the route block's fallback line and the proxy
	// service name would overwrite the front-end's manifest block.
	if name == routeDefaultName || name == d.manifest.ProxyService() {
		return registry.Entry{}, fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	if explicitPort != 0 && (explicitPort < 1024 || explicitPort > 65535) {
		return registry.Entry{}, fmt.Errorf("%w: %d not in 1024-65535", ErrInvalidPort, explicitPort)
	}

	unlock, err := registry.AcquireLock(d.store.Path(), "add")
	if err != nil {
		return registry.Entry{}, err
	}
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	if err := d.requireConsistent(); err != nil {
		return registry.Entry{}, err
	}

	snap, err := d.store.Load()
	if err != nil {
		return registry.Entry{}, err
	}
	if snap.Exists(name) {
		return registry.Entry{}, fmt.Errorf("%w: %s", registry.ErrDuplicateName, name)
	}

	port := explicitPort
	if port == 0 {
		port, err = d.allocator.Allocate(snap)
		if err != nil {
			return registry.Entry{}, err
		}
	} else if snap.PortInUse(port) {
		return registry.Entry{}, fmt.Errorf("%w: %d", registry.ErrPortConflict, port)
	}

	entry := registry.Entry{
		Name:    name,
		Port:    port,
		DataDir: filepath.Join(d.dataRoot, name),
	}

	if err := d.store.Add(entry); err != nil {
		return registry.Entry{}, err
	}

	after, err := d.store.Load()
	if err != nil {
		return registry.Entry{}, err
	}

	if err := d.routes.Apply(after.Entries()); err != nil {
		return registry.Entry{}, d.revertAdd("add "+name, entry, snap, false, err)
	}

	if err := d.manifest.Apply(after.Entries()); err != nil {
		return registry.Entry{}, d.revertAdd("add "+name, entry, snap, true, err)
	}

	if err := os.MkdirAll(entry.DataDir, 0o755); err != nil {
		log.Printf("Dispatcher: warning: failed to create data directory %s: %v", entry.DataDir, err)
	}

	// DNS runs with orchestrator semantics: a failure is reported as a
	// warning, never a rollback. The record ID persists in the registry so
	// remove can find it in a later invocation.
	if recordID, err := d.dns.EnsureRecord(ctx, name); err != nil {
		log.Printf("Dispatcher: warning: DNS record for %s not created: %v", name, err)
	} else if recordID != "" {
		if err := d.store.SetDNSRecordID(name, recordID); err != nil {
			log.Printf("Dispatcher: warning: failed to persist DNS record ID for %s: %v", name, err)
		}
	}

	locked = false
	unlock()

	log.Printf("Dispatcher: registered instance %q on port %d", name, port)

	if err := d.orch.Start(ctx, name); err != nil {
		return entry, &OrchestratorError{Op: "start " + name, Err: err}
	}
	return entry, nil
}

// revertAdd backs out a half-applied add. prior is the snapshot from before
// the mutation, used to restore the route block when it was already written.
func (d *Dispatcher) revertAdd(op string, entry registry.Entry, prior *registry.Snapshot, routesWritten bool, cause error) error {
	artifacts := []string{artifactRegistry}
	if routesWritten {
		artifacts = append(artifacts, artifactRoutes)
	}

	if _, err := d.store.Remove(entry.Name); err != nil {
		return &PartialFailureError{Op: op, Artifacts: artifacts, Cause: cause, RevertErr: err}
	}
	if routesWritten {
		if err := d.routes.Apply(prior.Entries()); err != nil {
			return &PartialFailureError{Op: op, Artifacts: []string{artifactRoutes}, Cause: cause, RevertErr: err}
		}
	}
	return &PartialFailureError{Op: op, RolledBack: true, Cause: cause}
}

// Remove unregisters an instance, synthesizes both derived artifacts, then
// stops and removes the container. The data directory is left alone; its
// deletion is the caller's explicitly confirmed decision.
func (d *Dispatcher) Remove(ctx context.Context, name string) (registry.Entry, error) {
	if !nameRE.MatchString(name) {
		return registry.Entry{}, fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, nameRE.String())
	}

	unlock, err := registry.AcquireLock(d.store.Path(), "remove")
	if err != nil {
		return registry.Entry{}, err
	}
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	if err := d.requireConsistent(); err != nil {
		return registry.Entry{}, err
	}

	entry, err := d.store.Remove(name)
	if err != nil {
		return registry.Entry{}, err
	}

	after, err := d.store.Load()
	if err != nil {
		return registry.Entry{}, err
	}

	if err := d.routes.Apply(after.Entries()); err != nil {
		return registry.Entry{}, d.revertRemove("remove "+name, entry, false, err)
	}

	if err := d.manifest.Apply(after.Entries()); err != nil {
		return registry.Entry{}, d.revertRemove("remove "+name, entry, true, err)
	}

	if err := d.dns.DeleteRecord(ctx, entry.DNSRecordID, name); err != nil {
		log.Printf("Dispatcher: warning: DNS record for %s not deleted: %v", name, err)
	}

	locked = false
	unlock()

	log.Printf("Dispatcher: unregistered instance %q (port %d)", name, entry.Port)

	if err := d.orch.Remove(ctx, name); err != nil {
		return entry, &OrchestratorError{Op: "stop " + name, Err: err}
	}
	return entry, nil
}

// revertRemove re-adds the entry a half-applied remove deleted.
func (d *Dispatcher) revertRemove(op string, entry registry.Entry, routesWritten bool, cause error) error {
	artifacts := []string{artifactRegistry}
	if routesWritten {
		artifacts = append(artifacts, artifactRoutes)
	}

	if err := d.store.Add(entry); err != nil {
		return &PartialFailureError{Op: op, Artifacts: artifacts, Cause: cause, RevertErr: err}
	}
	if routesWritten {
		restored, err := d.store.Load()
		if err == nil {
			err = d.routes.Apply(restored.Entries())
		}
		if err != nil {
			return &PartialFailureError{Op: op, Artifacts: []string{artifactRoutes}, Cause: cause, RevertErr: err}
		}
	}
	return &PartialFailureError{Op: op, RolledBack: true, Cause: cause}
}

// requireConsistent refuses to mutate on top of a broken bijection.
func (d *Dispatcher) requireConsistent() error {
	report, err := d.Verify()
	if err != nil {
		return err
	}
	if !report.Clean() {
		return &DriftError{Details: report.Details}
	}
	return nil
}
