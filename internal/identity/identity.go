// Package identity manages the stable anonymous installation identity.
// The id salts anonymized prompt digests and fills user_id in log
// entries when the active profile tracks users.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Identity is persisted once per installation.
type Identity struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// Load reads the identity from dir, generating and persisting one on
// first run. A corrupt file is regenerated rather than failing the
// daemon.
func Load(dir string) (Identity, error) {
	path := filepath.Join(dir, "identity.json")

	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if jerr := json.Unmarshal(data, &id); jerr == nil && id.ID != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("read identity: %w", err)
	}

	id := Identity{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := save(path, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create identity directory: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}
