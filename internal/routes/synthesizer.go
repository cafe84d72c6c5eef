// Package routes maintains the managed subdomain->port mapping block inside
// the reverse proxy's routing configuration. Only the block between the map
// header and its closing brace belongs to us; every other byte of the file is
// preserved verbatim.
package routes

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"burrow/internal/registry"
)

// ErrAnchorMissing means the routing config is structurally unexpected: the
// managed block is absent and the creation anchor cannot be found. Synthesis
// refuses to guess rather than corrupt the file.
var ErrAnchorMissing = errors.New("routing config anchor missing")

const (
	blockHeader = "map $subdomain $backend_port {"
	anchorLine  = "http {"
)

// Synthesizer owns the managed block of one routing configuration file.
type Synthesizer struct {
	path        string
	defaultPort int
}

// NewSynthesizer creates a synthesizer for the routing config at path.
// defaultPort backs the block's fallback entry for unknown subdomains.
func NewSynthesizer(path string, defaultPort int) *Synthesizer {
	return &Synthesizer{path: path, defaultPort: defaultPort}
}

// Apply regenerates the managed block from a registry snapshot. Entries are
// rendered in registry order after the default line, so re-applying an
// unchanged registry is a byte-for-byte no-op. If the block does not exist it
// is created directly after the http block opener.
func (s *Synthesizer) Apply(entries []registry.Entry) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", ErrAnchorMissing, s.path)
		}
		return fmt.Errorf("failed to read routing config: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	start, end, indent := findBlock(lines)
	if start >= 0 && end < 0 {
		return fmt.Errorf("%w: managed block in %s is unterminated", ErrAnchorMissing, s.path)
	}
	var out []string
	if start >= 0 {
		out = append(out, lines[:start]...)
		out = append(out, renderBlock(indent, s.defaultPort, entries)...)
		out = append(out, lines[end+1:]...)
	} else {
		anchor := -1
		for i, line := range lines {
			if strings.TrimSpace(line) == anchorLine {
				anchor = i
				break
			}
		}
		if anchor < 0 {
			return fmt.Errorf("%w: no %q block in %s", ErrAnchorMissing, anchorLine, s.path)
		}
		indent = leadingWhitespace(lines[anchor]) + "    "
		out = append(out, lines[:anchor+1]...)
		out = append(out, renderBlock(indent, s.defaultPort, entries)...)
		out = append(out, lines[anchor+1:]...)
	}

	rendered := strings.Join(out, "\n")
	if rendered == string(data) {
		return nil
	}

	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write routing config: %w", err)
	}
	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("failed to rename routing config: %w", err)
	}

	log.Printf("Routes: synthesized %d mapping(s) into %s", len(entries), s.path)
	return nil
}

// Current parses the managed block into a name->port map, including the
// default entry. It returns ErrAnchorMissing when the block is absent.
func (s *Synthesizer) Current() (map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrAnchorMissing, s.path)
		}
		return nil, fmt.Errorf("failed to read routing config: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	start, end, _ := findBlock(lines)
	if start < 0 {
		return nil, fmt.Errorf("%w: no managed block in %s", ErrAnchorMissing, s.path)
	}
	if end < 0 {
		return nil, fmt.Errorf("%w: managed block in %s is unterminated", ErrAnchorMissing, s.path)
	}

	mapping := make(map[string]int)
	for _, line := range lines[start+1 : end] {
		fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		if len(fields) != 2 {
			continue
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		mapping[fields[0]] = port
	}
	return mapping, nil
}

// findBlock locates the managed block. It returns the header and closing
// line indexes plus the header's indentation, or start=-1 when absent.
func findBlock(lines []string) (start, end int, indent string) {
	start = -1
	for i, line := range lines {
		if strings.TrimSpace(line) == blockHeader {
			start = i
			indent = leadingWhitespace(line)
			break
		}
	}
	if start < 0 {
		return -1, -1, ""
	}
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "}" {
			return start, i, indent
		}
	}
	return start, -1, indent
}

func renderBlock(indent string, defaultPort int, entries []registry.Entry) []string {
	lines := make([]string, 0, len(entries)+3)
	lines = append(lines, indent+blockHeader)
	lines = append(lines, fmt.Sprintf("%s    default %d;", indent, defaultPort))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s    %s %d;", indent, e.Name, e.Port))
	}
	lines = append(lines, indent+"}")
	return lines
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
