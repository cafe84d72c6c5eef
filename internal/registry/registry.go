package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Registry invariant violations. Callers match with errors.Is.
var (
	ErrDuplicateName = errors.New("duplicate instance name")
	ErrPortConflict  = errors.New("port already registered")
	ErrNotFound      = errors.New("instance not found")
)

// Entry is one registered backend instance. Entries are immutable: an
// instance changes only by remove followed by re-add.
type Entry struct {
	Name        string `yaml:"name"`
	Port        int    `yaml:"port"`
	DataDir     string `yaml:"data_dir"`
	DNSRecordID string `yaml:"dns_record_id,omitempty"`
}

// document is the on-disk shape of the registry file.
type document struct {
	Instances []Entry `yaml:"instances"`
}

// Snapshot is an ordered, in-memory view of the registry. Insertion order is
// preserved on rewrite to keep file diffs minimal.
type Snapshot struct {
	entries []Entry
}

// Entries returns the entries in registry order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Exists reports whether an instance with the given name is registered.
func (s *Snapshot) Exists(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Lookup returns the entry for name.
func (s *Snapshot) Lookup(name string) (Entry, bool) {
	for _, e := range s.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// PortInUse reports whether any entry holds the given port.
func (s *Snapshot) PortInUse(port int) bool {
	for _, e := range s.entries {
		if e.Port == port {
			return true
		}
	}
	return false
}

// Len returns the number of registered instances.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// add appends an entry after checking the name and port invariants.
func (s *Snapshot) add(entry Entry) error {
	if s.Exists(entry.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, entry.Name)
	}
	if s.PortInUse(entry.Port) {
		return fmt.Errorf("%w: %d", ErrPortConflict, entry.Port)
	}
	s.entries = append(s.entries, entry)
	return nil
}

// remove deletes the entry for name, preserving the order of the rest.
func (s *Snapshot) remove(name string) (Entry, error) {
	for i, e := range s.entries {
		if e.Name == name {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Store owns read/modify/write access to the registry file.
type Store struct {
	path string
}

// NewStore creates a store for the registry file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the registry file path.
func (st *Store) Path() string {
	return st.path
}

// Load reads the registry file. A missing file yields an empty snapshot.
func (st *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	return &Snapshot{entries: doc.Instances}, nil
}

// Save persists a snapshot atomically: write to a temp file in the same
// directory, then rename over the registry, so concurrent readers never see
// a partial write.
func (st *Store) Save(snap *Snapshot) error {
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := yaml.Marshal(document{Instances: snap.entries})
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmpFile := st.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	if err := os.Rename(tmpFile, st.path); err != nil {
		return fmt.Errorf("failed to rename registry file: %w", err)
	}

	return nil
}

// Add appends an entry and persists the registry. It fails with
// ErrDuplicateName or ErrPortConflict without touching the file.
func (st *Store) Add(entry Entry) error {
	snap, err := st.Load()
	if err != nil {
		return err
	}
	if err := snap.add(entry); err != nil {
		return err
	}
	return st.Save(snap)
}

// Remove deletes the entry for name and persists the registry. It fails with
// ErrNotFound without touching the file. The instance data directory is never
// deleted here; that is an explicit, separately confirmed caller action.
func (st *Store) Remove(name string) (Entry, error) {
	snap, err := st.Load()
	if err != nil {
		return Entry{}, err
	}
	entry, err := snap.remove(name)
	if err != nil {
		return Entry{}, err
	}
	if err := st.Save(snap); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// SetDNSRecordID updates the persisted DNS record reference for name. This is
// the one sanctioned in-place field update: the record ID only exists after
// the registrar call, which necessarily follows the initial Add.
func (st *Store) SetDNSRecordID(name, recordID string) error {
	snap, err := st.Load()
	if err != nil {
		return err
	}
	for i := range snap.entries {
		if snap.entries[i].Name == name {
			snap.entries[i].DNSRecordID = recordID
			return st.Save(snap)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}
