// Package device manages the stable per-device identity used to
// authenticate sync requests and to namespace MQTT topics.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"rouse/internal/config"
)

// LoadOrCreateID returns the device UUID stored at path, generating and
// persisting a fresh one on first run.
func LoadOrCreateID(path string) (string, error) {
	path = filepath.Clean(path)

	contents, err := os.ReadFile(path)

	switch {
	case err == nil:
		id, parseErr := uuid.Parse(strings.TrimSpace(string(contents)))
		if parseErr != nil {
			return "", fmt.Errorf("parse device id file %s: %w", path, parseErr)
		}

		return id.String(), nil
	case errors.Is(err, os.ErrNotExist):
		// First run, mint an identity below.
	default:
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.New().String()

	if err := os.WriteFile(path, []byte(id+"\n"), config.DefaultFilePermissions); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}

	return id, nil
}
