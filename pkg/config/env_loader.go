package config

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
)

// EnvVar represents a single environment variable
type EnvVar struct {
	Key   string
	Value string
}

// LoadEnvFile reads KEY=VALUE lines from a dotenv style file. Blank lines
// and lines starting with # are skipped, surrounding quotes are removed.
func LoadEnvFile(path string) ([]EnvVar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("[ENV] Warning: Failed to close file %s: %v", path, err)
		}
	}()

	var envVars []EnvVar
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			log.Printf("[ENV] Warning: Invalid format at line %d in %s", lineNum, path)
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		if key == "" || strings.ContainsAny(key, " \t") {
			log.Printf("[ENV] Warning: Invalid key at line %d in %s: '%s'", lineNum, path, key)
			continue
		}

		envVars = append(envVars, EnvVar{Key: key, Value: value})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return envVars, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// ApplyEnvVars sets variables that are not already set in the process
// environment and returns the keys it set. Real environment wins over the file.
func ApplyEnvVars(envVars []EnvVar) []string {
	var applied []string
	for _, env := range envVars {
		if _, exists := os.LookupEnv(env.Key); exists {
			continue
		}
		if err := os.Setenv(env.Key, env.Value); err != nil {
			log.Printf("[ENV] Error setting environment variable %s: %v", env.Key, err)
			continue
		}
		applied = append(applied, env.Key)
	}
	if len(applied) > 0 {
		log.Printf("[ENV] Set %d environment variables from env file", len(applied))
	}
	return applied
}
