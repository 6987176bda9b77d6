package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/takutakahashi/agentapi-push/pkg/config"
	"github.com/takutakahashi/agentapi-push/pkg/relay"
)

// Output formats accepted by --output
const (
	OutputYAML = "yaml"
	OutputJSON = "json"
	OutputEnv  = "env"
)

// loadConfig applies the --env-file, then loads configuration from the
// --config file, environment and flags bound on the global viper.
func loadConfig() (*config.Config, error) {
	if envFile := viper.GetString("env_file"); envFile != "" {
		vars, err := config.LoadEnvFile(envFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		config.ApplyEnvVars(vars)
	}

	cfg, err := config.Load(viper.GetViper(), viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRelayClient(cfg *config.Config) *relay.Client {
	if cfg.Backend.BaseURL == "" {
		return nil
	}
	return relay.NewClient(cfg.Backend.BaseURL, cfg.TokenSource())
}

// writeOutput renders v in the --output format
func writeOutput(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "", OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	case OutputEnv:
		vars, ok := v.(map[string]string)
		if !ok {
			return fmt.Errorf("output format %q is not available for this command", format)
		}
		keys := make([]string, 0, len(vars))
		for k := range vars {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "%s=%s\n", k, vars[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want yaml, json or env)", format)
	}
}

func outputFormat() string {
	return viper.GetString("output")
}

func setupLogging() {
	if viper.GetBool("verbose") {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}
