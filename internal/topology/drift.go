package topology

import (
	"errors"
	"fmt"

	"burrow/internal/manifest"
	"burrow/internal/routes"
)

// DriftReport lists every way the derived artifacts disagree with the
// registry. An empty report means the bijection holds.
type DriftReport struct {
	Details []string
}

// Clean reports whether registry, route table and manifest are in bijection.
func (r *DriftReport) Clean() bool {
	return len(r.Details) == 0
}

// Verify loads all three artifacts and compares them. It distinguishes
// "artifact not created yet" (empty registry, no managed block: consistent)
// from genuine drift. A structurally unreadable artifact is an error, not
// drift.
func (d *Dispatcher) Verify() (*DriftReport, error) {
	snap, err := d.store.Load()
	if err != nil {
		return nil, err
	}
	entries := snap.Entries()
	report := &DriftReport{}

	routeMap, err := d.routes.Current()
	switch {
	case errors.Is(err, routes.ErrAnchorMissing) && len(entries) == 0:
		// Nothing registered and nothing synthesized yet.
	case errors.Is(err, routes.ErrAnchorMissing):
		report.Details = append(report.Details, fmt.Sprintf("%s: managed block missing", artifactRoutes))
	case err != nil:
		return nil, err
	default:
		for _, e := range entries {
			port, ok := routeMap[e.Name]
			if !ok {
				report.Details = append(report.Details, fmt.Sprintf("%s: missing route for %s", artifactRoutes, e.Name))
			} else if port != e.Port {
				report.Details = append(report.Details, fmt.Sprintf("%s: %s routes to %d, registry says %d", artifactRoutes, e.Name, port, e.Port))
			}
		}
		for name := range routeMap {
			if name != routeDefaultName && !snap.Exists(name) {
				report.Details = append(report.Details, fmt.Sprintf("%s: stale route for %s", artifactRoutes, name))
			}
		}
	}

	state, err := d.manifest.Current()
	switch {
	case errors.Is(err, manifest.ErrProxyServiceMissing) && len(entries) == 0:
		// No manifest yet is fine while nothing is registered.
	case errors.Is(err, manifest.ErrProxyServiceMissing):
		report.Details = append(report.Details, fmt.Sprintf("%s: %v", artifactManifest, err))
	case err != nil:
		return nil, err
	default:
		depends := make(map[string]bool, len(state.DependsOn))
		for _, name := range state.DependsOn {
			depends[name] = true
		}
		for _, e := range entries {
			port, ok := state.Services[e.Name]
			if !ok {
				report.Details = append(report.Details, fmt.Sprintf("%s: missing service block for %s", artifactManifest, e.Name))
			} else if port != e.Port {
				report.Details = append(report.Details, fmt.Sprintf("%s: %s publishes %d, registry says %d", artifactManifest, e.Name, port, e.Port))
			}
			if !depends[e.Name] {
				report.Details = append(report.Details, fmt.Sprintf("%s: proxy missing dependency on %s", artifactManifest, e.Name))
			}
		}
		for name := range state.Services {
			if !snap.Exists(name) {
				report.Details = append(report.Details, fmt.Sprintf("%s: stale service block for %s", artifactManifest, name))
			}
		}
		for _, name := range state.DependsOn {
			if !snap.Exists(name) {
				report.Details = append(report.Details, fmt.Sprintf("%s: stale proxy dependency on %s", artifactManifest, name))
			}
		}
	}

	return report, nil
}
