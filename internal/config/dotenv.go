package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads env files in priority order: .env.local, then
// .env.<APP_ENV>, then .env. godotenv never overwrites variables that
// are already set, so OS environment wins and earlier files win over
// later ones. Returns the files actually found.
func LoadDotEnv() []string {
	candidates := []string{".env.local"}
	if env := os.Getenv("APP_ENV"); env != "" {
		candidates = append(candidates, ".env."+env)
	}
	candidates = append(candidates, ".env")

	var found []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			found = append(found, f)
		}
	}
	if len(found) > 0 {
		_ = godotenv.Load(found...)
	}
	return found
}
