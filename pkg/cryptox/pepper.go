package cryptox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreateSecretFile returns the trimmed contents of path, creating the
// file with a fresh 256-bit random value when it does not exist yet. It backs
// both the password pepper and, in dev, the token signing seed.
func LoadOrCreateSecretFile(path string) (string, error) {
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		v := strings.TrimSpace(string(data))
		if v == "" {
			return "", fmt.Errorf("secret file %s is empty", path)
		}
		return v, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read secret file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create secret dir: %w", err)
	}

	v, err := GenerateToken(TokenSize256)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(v), 0o600); err != nil {
		return "", fmt.Errorf("write secret file: %w", err)
	}
	return v, nil
}
