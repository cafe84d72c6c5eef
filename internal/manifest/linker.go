// Package manifest keeps the orchestrator's compose file in line with the
// registry: one service block per registered instance plus the proxy
// service's depends_on list. Edits go through yaml nodes so everything we do
// not own round-trips untouched.
package manifest

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"

	"burrow/internal/registry"
)

// ErrProxyServiceMissing means the manifest lacks the front-end service the
// dependency declarations hang off. Linking refuses to proceed rather than
// invent a proxy block.
var ErrProxyServiceMissing = errors.New("compose manifest has no proxy service")

const (
	// managedLabel marks service blocks (and their containers) as ours, so
	// both stale-block removal and the orchestrator's running-set listing can
	// tell managed instances from hand-maintained services.
	managedLabel = "burrow.managed=true"

	// backendPort is the fixed port instances listen on inside the container.
	backendPort = 8080

	// healthPath is the health check convention every instance follows.
	healthPath = "/up"
)

type healthcheckSpec struct {
	Test     []string `yaml:"test"`
	Interval string   `yaml:"interval"`
}

type serviceSpec struct {
	Image         string          `yaml:"image"`
	ContainerName string          `yaml:"container_name"`
	Restart       string          `yaml:"restart"`
	Ports         []string        `yaml:"ports"`
	Volumes       []string        `yaml:"volumes"`
	Environment   []string        `yaml:"environment"`
	Labels        []string        `yaml:"labels"`
	Healthcheck   healthcheckSpec `yaml:"healthcheck"`
}

// State is the manifest's current view of the managed topology, used for
// drift detection.
type State struct {
	Services  map[string]int // managed service name -> published host port
	DependsOn []string       // proxy service dependency list
}

// Linker owns the managed service blocks and the proxy dependency list of
// one compose manifest.
type Linker struct {
	path         string
	proxyService string
	image        string
}

// NewLinker creates a linker for the compose manifest at path.
func NewLinker(path, proxyService, image string) *Linker {
	return &Linker{path: path, proxyService: proxyService, image: image}
}

// ProxyService returns the name of the front-end service the linker hangs
// dependency declarations off. That name can never belong to an instance.
func (l *Linker) ProxyService() string {
	return l.proxyService
}

// Apply brings the manifest into line with a registry snapshot: stale managed
// service blocks are dropped, one block per entry is written, and the proxy's
// depends_on holds exactly the registered names. Unmanaged services and any
// other manifest content are preserved.
func (l *Linker) Apply(entries []registry.Entry) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", ErrProxyServiceMissing, l.path)
		}
		return fmt.Errorf("failed to read compose manifest: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse compose manifest: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrProxyServiceMissing, l.path)
	}
	root := doc.Content[0]

	services := findMapValue(root, "services")
	if services == nil {
		return fmt.Errorf("%w: no services section in %s", ErrProxyServiceMissing, l.path)
	}
	proxy := findMapValue(services, l.proxyService)
	if proxy == nil {
		return fmt.Errorf("%w: service %q not in %s", ErrProxyServiceMissing, l.proxyService, l.path)
	}

	registered := make(map[string]bool, len(entries))
	for _, e := range entries {
		registered[e.Name] = true
	}

	// Drop managed blocks whose instance is no longer registered.
	for i := 0; i < len(services.Content); i += 2 {
		name := services.Content[i].Value
		if name == l.proxyService || registered[name] || !isManaged(services.Content[i+1]) {
			continue
		}
		services.Content = append(services.Content[:i], services.Content[i+2:]...)
		i -= 2
	}

	for _, e := range entries {
		node, err := l.serviceNode(e)
		if err != nil {
			return err
		}
		setMapValue(services, e.Name, node)
	}

	if err := l.linkDependencies(proxy, entries); err != nil {
		return err
	}

	var buf strings.Builder
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to render compose manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to render compose manifest: %w", err)
	}

	if buf.String() == string(data) {
		return nil
	}

	tmpFile := l.path + ".tmp"
	if err := os.WriteFile(tmpFile, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write compose manifest: %w", err)
	}
	if err := os.Rename(tmpFile, l.path); err != nil {
		return fmt.Errorf("failed to rename compose manifest: %w", err)
	}

	log.Printf("Manifest: linked %d instance service(s) into %s", len(entries), l.path)
	return nil
}

// linkDependencies rewrites the proxy's depends_on so it references exactly
// the registered names. Names already present keep their position (checked
// against the parsed list, not by substring); new names append in registry
// order. An empty registry removes the section.
func (l *Linker) linkDependencies(proxy *yaml.Node, entries []registry.Entry) error {
	registered := make(map[string]bool, len(entries))
	for _, e := range entries {
		registered[e.Name] = true
	}

	var deps []string
	if existing := findMapValue(proxy, "depends_on"); existing != nil {
		for _, item := range existing.Content {
			if registered[item.Value] {
				deps = append(deps, item.Value)
				registered[item.Value] = false
			}
		}
	}
	for _, e := range entries {
		if registered[e.Name] {
			deps = append(deps, e.Name)
		}
	}

	if len(deps) == 0 {
		deleteMapKey(proxy, "depends_on")
		return nil
	}

	var node yaml.Node
	if err := node.Encode(deps); err != nil {
		return fmt.Errorf("failed to encode depends_on: %w", err)
	}
	setMapValue(proxy, "depends_on", &node)
	return nil
}

// Current parses the manifest's managed state for drift detection.
func (l *Linker) Current() (*State, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrProxyServiceMissing, l.path)
		}
		return nil, fmt.Errorf("failed to read compose manifest: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse compose manifest: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrProxyServiceMissing, l.path)
	}
	root := doc.Content[0]

	services := findMapValue(root, "services")
	if services == nil {
		return nil, fmt.Errorf("%w: no services section in %s", ErrProxyServiceMissing, l.path)
	}
	proxy := findMapValue(services, l.proxyService)
	if proxy == nil {
		return nil, fmt.Errorf("%w: service %q not in %s", ErrProxyServiceMissing, l.proxyService, l.path)
	}

	state := &State{Services: make(map[string]int)}
	for i := 0; i < len(services.Content); i += 2 {
		name := services.Content[i].Value
		svc := services.Content[i+1]
		if name == l.proxyService || !isManaged(svc) {
			continue
		}
		state.Services[name] = publishedPort(svc)
	}

	if deps := findMapValue(proxy, "depends_on"); deps != nil {
		for _, item := range deps.Content {
			state.DependsOn = append(state.DependsOn, item.Value)
		}
	}

	return state, nil
}

func (l *Linker) serviceNode(e registry.Entry) (*yaml.Node, error) {
	spec := serviceSpec{
		Image:         l.image,
		ContainerName: e.Name,
		Restart:       "unless-stopped",
		Ports:         []string{fmt.Sprintf("%d:%d", e.Port, backendPort)},
		Volumes:       []string{fmt.Sprintf("%s:/data", e.DataDir)},
		Environment:   []string{fmt.Sprintf("PORT=%d", backendPort)},
		Labels:        []string{managedLabel},
		Healthcheck: healthcheckSpec{
			Test:     []string{"CMD-SHELL", fmt.Sprintf("wget -q --spider http://localhost:%d%s || exit 1", backendPort, healthPath)},
			Interval: "30s",
		},
	}

	var node yaml.Node
	if err := node.Encode(spec); err != nil {
		return nil, fmt.Errorf("failed to encode service %s: %w", e.Name, err)
	}
	return &node, nil
}

// publishedPort extracts the host side of the first port mapping.
func publishedPort(svc *yaml.Node) int {
	ports := findMapValue(svc, "ports")
	if ports == nil || len(ports.Content) == 0 {
		return 0
	}
	hostPart, _, ok := strings.Cut(ports.Content[0].Value, ":")
	if !ok {
		return 0
	}
	port, err := nat.ParsePort(hostPart)
	if err != nil {
		return 0
	}
	return port
}

func isManaged(svc *yaml.Node) bool {
	labels := findMapValue(svc, "labels")
	if labels == nil {
		return false
	}
	for _, item := range labels.Content {
		if item.Value == managedLabel {
			return true
		}
	}
	return false
}

// findMapValue returns the value node for key in a mapping node, or nil.
func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// setMapValue replaces the value for key, or appends the pair when absent.
func setMapValue(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	mapping.Content = append(mapping.Content, keyNode, value)
}

func deleteMapKey(mapping *yaml.Node, key string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}
