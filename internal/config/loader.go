package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables that override configuration.
	EnvPrefix = "REPOCTX_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// DefaultFiles are tried in order when Load is given no path.
var DefaultFiles = []string{"repoctx.yaml", "repoctx.yml", "repoctx.toml"}

// nestedSections lists the sub-tables an env key may address, so
// REPOCTX_TELEMETRY_SAMPLING_RATE reaches telemetry.sampling.rate.
var nestedSections = map[string][]string{
	"logging":   {"caller", "sampling", "redaction"},
	"telemetry": {"sampling", "metrics", "shutdown"},
}

// listKeys are string lists that may be given as comma separated env values.
var listKeys = []string{
	"filter.ignored_dirs",
	"filter.ignored_files",
	"filter.ignored_extensions",
	"filter.exclude_patterns",
	"scrub.allow_list",
	"logging.redaction.fields",
	"logging.redaction.patterns",
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. REPOCTX_* environment variables
//  2. The config file: path when set, else the first of DefaultFiles in the
//     working directory that exists
//  3. Built-in defaults
//
// Environment keys drop the prefix, lowercase, and split on the first
// underscore:
//
//	REPOCTX_PIPELINE_BATCH_SIZE -> pipeline.batch_size
//	REPOCTX_FETCH_GITHUB_TOKEN  -> fetch.github_token
//	REPOCTX_TELEMETRY_METRICS_EXPORT_INTERVAL -> telemetry.metrics.export_interval
//
// List values from the environment are comma separated.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = findDefaultFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), parserFor(path)); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, key := range listKeys {
		if k.Exists(key) {
			setList(cfg, key, stringList(k, key))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps REPOCTX_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, sub := range nestedSections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

func findDefaultFile() string {
	for _, name := range DefaultFiles {
		if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
			return name
		}
	}
	return ""
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return TOMLParser()
	}
	return yaml.Parser()
}

// readConfigFile validates through the open descriptor to avoid a
// stat/open race, then reads at most maxConfigFileSize bytes.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: more than %d bytes", maxConfigFileSize)
	}
	return content, nil
}

// validateConfigFileProperties checks the file is regular, small enough
// and not writable by other users. The file may hold a GitHub token.
func validateConfigFileProperties(info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return errors.New("config path is not a regular file")
	}

	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

func stringList(k *koanf.Koanf, key string) []string {
	s, ok := k.Get(key).(string)
	if !ok {
		return k.Strings(key)
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setList(cfg *Config, key string, v []string) {
	switch key {
	case "filter.ignored_dirs":
		cfg.Filter.IgnoredDirs = v
	case "filter.ignored_files":
		cfg.Filter.IgnoredFiles = v
	case "filter.ignored_extensions":
		cfg.Filter.IgnoredExtensions = v
	case "filter.exclude_patterns":
		cfg.Filter.ExcludePatterns = v
	case "scrub.allow_list":
		cfg.Scrub.AllowList = v
	case "logging.redaction.fields":
		cfg.Logging.Redaction.Fields = v
	case "logging.redaction.patterns":
		cfg.Logging.Redaction.Patterns = v
	}
}
