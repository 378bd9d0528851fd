package utils

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env files. An environment-specific file (.env.production,
// .env.test, ...) takes precedence over the plain .env when both exist.
func LoadEnv(env string) error {
	if env != "" {
		if err := godotenv.Load(".env." + env); err == nil {
			_ = godotenv.Load() // fill remaining keys from .env
			return nil
		}
	}
	return godotenv.Load()
}

// GetEnv returns the raw value of an environment variable.
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetIntEnv parses an environment variable as int64, returning 0 when unset
// or unparseable.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetBoolEnv parses an environment variable as bool, returning false when
// unset or unparseable.
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

// GetFloatEnv parses an environment variable as float64, returning 0 when
// unset or unparseable.
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(os.Getenv(key))
}

// RandText returns n/2*2 hex characters of cryptographic randomness.
func RandText(n int) string {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", buf)[:n]
}
