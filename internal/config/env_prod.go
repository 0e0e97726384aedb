//go:build !dev

package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv reads the file named by ENV_FILE when it is set.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		return nil
	}
	return godotenv.Load(path)
}
