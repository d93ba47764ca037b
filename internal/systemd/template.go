package systemd

import (
	"fmt"
	"os"
	"path/filepath"
)

// UnitName is the file name of the user service unit.
const UnitName = "tabwarden.service"

// UnitTemplate returns the systemd user unit for the tabwarden daemon.
// The daemon is per-user: it guards that user's browser sessions, so it
// installs under systemctl --user rather than as a system service.
func UnitTemplate(execPath string) string {
	return fmt.Sprintf(`[Unit]
Description=Tabwarden browser governance daemon
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%s serve
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=read-only
ReadWritePaths=%%h/.tabwarden

[Install]
WantedBy=default.target
`, execPath)
}

// UserUnitDir returns the systemd user unit directory for this user.
func UserUnitDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "systemd", "user"), nil
}

// Install writes the unit file into dir and returns its path. An
// existing unit is overwritten; enabling it is left to the caller.
func Install(dir, execPath string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create unit directory: %w", err)
	}
	path := filepath.Join(dir, UnitName)
	if err := os.WriteFile(path, []byte(UnitTemplate(execPath)), 0644); err != nil {
		return "", fmt.Errorf("write unit file: %w", err)
	}
	return path, nil
}
