package utils

import (
	"os"
	"strconv"
)

// Env returns the value of the environment variable or the default.
func Env(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// EnvInt returns the integer value of the environment variable or the
// default when unset or not a positive integer.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
