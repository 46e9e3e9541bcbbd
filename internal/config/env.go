package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// envFileName is looked up in the working directory and in the data directory.
const envFileName = ".env"

// LoadEnvFiles applies KEY=VALUE lines from the given files in order. Missing
// files are skipped. Variables that are already set keep their value, so the
// first file naming a key wins.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := loadEnvFile(path); err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return nil
}

func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := parseEnvLine(scanner.Text())
		if !ok {
			continue
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// parseEnvLine accepts `KEY=value`, `export KEY=value` and quoted values.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
		value = value[1 : len(value)-1]
	}
	return key, value, true
}

// GetEnvWithFallback returns the first non-empty variable among keys.
func GetEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

// envAliases maps canonical MEDTRACKER_* names to the plain names people
// already have exported for their bots.
var envAliases = map[string][]string{
	"MEDTRACKER_CHANNELS_TELEGRAM_BOT_TOKEN": {"TELEGRAM_BOT_TOKEN"},
	"MEDTRACKER_CHANNELS_DISCORD_TOKEN":      {"DISCORD_BOT_TOKEN", "DISCORD_TOKEN"},
	"MEDTRACKER_SECURITY_JWT_SECRET":         {"MEDTRACKER_JWT_SECRET", "JWT_SECRET"},
	"MEDTRACKER_SECURITY_ADMIN_PASSWORD":     {"MEDTRACKER_ADMIN_PASSWORD"},
}

// ResolveEnvWithAliases reads canonicalKey, then its aliases.
func ResolveEnvWithAliases(canonicalKey string) string {
	return GetEnvWithFallback(append([]string{canonicalKey}, envAliases[canonicalKey]...)...)
}

// expandPath resolves a leading "~/" against the home directory.
func expandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
