package policy

import (
	"os"

	"github.com/tabwarden/tabwarden/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.Discard()
}

func writeRaw(path, body string) error {
	return os.WriteFile(path, []byte(body), 0600)
}
