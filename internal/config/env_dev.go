//go:build dev

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Development builds read .env.local, then .env. godotenv never overrides a
// variable that is already set, so the first file and the real env win.
var devEnvFiles = []string{".env.local", ".env"}

func loadDotEnv() error {
	var present []string
	for _, name := range devEnvFiles {
		if _, err := os.Stat(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		present = append(present, name)
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}
