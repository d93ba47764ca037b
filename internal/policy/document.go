package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Document is the administrator policy document. An options UI owns the
// file; the engine only appends hosts to profile lists on always-allow
// and always-block decisions.
type Document struct {
	Profiles          []Profile `json:"profiles"`
	SelectedProfileID string    `json:"selected_profile_id"`
	AdminPIN          string    `json:"admin_pin,omitempty"`
	RedirectURL       string    `json:"redirect_url,omitempty"`
	UserRole          string    `json:"user_role,omitempty"`
	CustomAIDomains   []string  `json:"custom_ai_domains,omitempty"`
}

// DefaultDocument returns the built-in document: three profiles with
// balanced selected and no PIN configured.
func DefaultDocument() *Document {
	return &Document{
		Profiles: []Profile{
			{
				ID:            "strict",
				Name:          "Strict",
				Mode:          ModeStrict,
				RiskThreshold: 40,
				RequirePIN:    true,
				Weights:       DefaultWeights(),
				TrackUsers:    true,
				TrackPrompts:  TrackFull,
			},
			{
				ID:            "balanced",
				Name:          "Balanced",
				Mode:          ModeBalanced,
				RiskThreshold: 70,
				RequirePIN:    false,
				Weights:       DefaultWeights(),
				TrackUsers:    true,
				TrackPrompts:  TrackAnonymized,
			},
			{
				ID:            "permissive",
				Name:          "Permissive",
				Mode:          ModePermissive,
				RiskThreshold: 90,
				RequirePIN:    false,
				Weights:       DefaultWeights(),
				TrackUsers:    false,
				TrackPrompts:  TrackOff,
			},
		},
		SelectedProfileID: "balanced",
	}
}

// Validate checks the document invariants: at least one profile, no
// duplicate ids, a selected profile that exists, and valid profiles.
func (d *Document) Validate() error {
	if len(d.Profiles) == 0 {
		return fmt.Errorf("document has no profiles")
	}
	seen := make(map[string]struct{}, len(d.Profiles))
	for _, p := range d.Profiles {
		if err := p.validate(); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate profile id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if _, ok := seen[d.SelectedProfileID]; !ok {
		return fmt.Errorf("selected profile %q not found", d.SelectedProfileID)
	}
	return nil
}

// Active returns the selected profile. Call Validate first; a dangling
// selection returns the zero profile and false.
func (d *Document) Active() (Profile, bool) {
	for _, p := range d.Profiles {
		if p.ID == d.SelectedProfileID {
			return p, true
		}
	}
	return Profile{}, false
}

// Load reads and validates a policy document. A missing file returns
// the default document so a fresh install works without setup.
func Load(path string) (*Document, error) {
	doc, _, err := LoadWithHash(path)
	return doc, err
}

// LoadWithHash loads a policy document and returns the SHA-256 of the
// raw bytes on disk. When no file exists the default document is
// returned with the hash of its canonical encoding.
func LoadWithHash(path string) (*Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			doc := DefaultDocument()
			canonical, merr := json.Marshal(doc)
			if merr != nil {
				return nil, "", fmt.Errorf("encode default document: %w", merr)
			}
			return doc, hashBytes(canonical), nil
		}
		return nil, "", fmt.Errorf("read policy document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("parse policy document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid policy document: %w", err)
	}
	return &doc, hashBytes(data), nil
}

// Save writes the document atomically: temp file in the same directory,
// fsync, then rename over the target.
func Save(path string, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid policy document: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode policy document: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create policy directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".policy-*.json")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace policy document: %w", err)
	}
	return nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
