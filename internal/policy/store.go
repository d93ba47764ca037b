package policy

import (
	"fmt"
	"sync"
)

// Snapshot is an immutable resolved view of the policy document. The
// engine reads one snapshot per evaluation so a mid-flight reload can
// never mix two policies in one decision.
type Snapshot struct {
	Doc    *Document
	Active Profile
	Hash   string
}

// NewSnapshot resolves the active profile of a validated document.
func NewSnapshot(doc *Document, hash string) (*Snapshot, error) {
	active, ok := doc.Active()
	if !ok {
		return nil, fmt.Errorf("selected profile %q not found", doc.SelectedProfileID)
	}
	return &Snapshot{Doc: doc, Active: active, Hash: hash}, nil
}

// Store holds the current snapshot and swaps it atomically on reload.
type Store struct {
	path string

	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore creates a store for the document at path. Call Load before
// first use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location on disk.
func (s *Store) Path() string { return s.path }

// Current returns the live snapshot, or nil before the first Load.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Replace swaps in a new snapshot.
func (s *Store) Replace(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Load reads the document from disk, validates it, and replaces the
// current snapshot. An invalid file leaves the running snapshot
// untouched and returns the error.
func (s *Store) Load() (*Snapshot, error) {
	doc, hash, err := LoadWithHash(s.path)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(doc, hash)
	if err != nil {
		return nil, err
	}
	s.Replace(snap)
	return snap, nil
}

// Mutate copies the current document, applies fn, validates, persists,
// and swaps the result in. Used for always-allow and always-block list
// updates; the watcher skips the resulting file event because the hash
// already matches.
func (s *Store) Mutate(fn func(*Document) error) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return nil, fmt.Errorf("no policy loaded")
	}
	doc := s.snap.Doc.clone()
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := Save(s.path, doc); err != nil {
		return nil, err
	}
	// Re-read so the snapshot hash matches the bytes on disk.
	fresh, hash, err := LoadWithHash(s.path)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(fresh, hash)
	if err != nil {
		return nil, err
	}
	s.snap = snap
	return snap, nil
}

func (d *Document) clone() *Document {
	out := &Document{
		Profiles:          make([]Profile, len(d.Profiles)),
		SelectedProfileID: d.SelectedProfileID,
		AdminPIN:          d.AdminPIN,
		RedirectURL:       d.RedirectURL,
		UserRole:          d.UserRole,
		CustomAIDomains:   append([]string(nil), d.CustomAIDomains...),
	}
	for i, p := range d.Profiles {
		cp := p
		cp.AllowedDomains = append([]string(nil), p.AllowedDomains...)
		cp.BlockedDomains = append([]string(nil), p.BlockedDomains...)
		if p.Weights.SensitiveField != nil {
			cp.Weights.SensitiveField = make(map[string]int, len(p.Weights.SensitiveField))
			for k, v := range p.Weights.SensitiveField {
				cp.Weights.SensitiveField[k] = v
			}
		}
		out.Profiles[i] = cp
	}
	return out
}
