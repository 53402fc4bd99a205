package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var envRef = regexp.MustCompile(`^\s*env\("([^"]+)"\)\s*$`)

// ResolveDSN expands a datasource written as env("NAME") to the value of that
// environment variable. Any other value is returned unchanged.
func ResolveDSN(dsn string) (string, error) {
	m := envRef.FindStringSubmatch(dsn)
	if m == nil {
		return strings.TrimSpace(dsn), nil
	}
	val, ok := os.LookupEnv(m[1])
	if !ok || val == "" {
		return "", fmt.Errorf("datasource refers to env(%q), which is not set", m[1])
	}
	return val, nil
}
