package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSecret string

func (s fakeSecret) Value() string { return string(s) }

func TestRedactedString(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "test", RedactedString("api_key", "sk-1234567890abcdef"))

	tl.AssertField(t, "test", "api_key", "[REDACTED:19]")
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "auth", Secret("github_token", fakeSecret("abcd")))

	tl.AssertField(t, "auth", "github_token", "[REDACTED:4]")
}

func TestRedactingEncoder_RedactsFieldNamesAndPatterns(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"

	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)

	logger.Info(context.Background(), "request",
		zap.String("token", "plain-value"),
		zap.String("header", "Bearer abc.def"),
		zap.String("path", "main/src/a.py"),
	)

	out := buf.String()
	assert.NotContains(t, out, "plain-value")
	assert.NotContains(t, out, "abc.def")
	assert.Contains(t, out, `"token":"[REDACTED]"`)
	assert.Contains(t, out, `"path":"main/src/a.py"`)
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"

	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)

	logger.With(zap.String("password", "hunter2")).Info(context.Background(), "child")

	assert.NotContains(t, buf.String(), "hunter2")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Redaction.Enabled = false

	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)

	logger.Info(context.Background(), "raw", zap.String("token", "visible"))

	assert.Contains(t, buf.String(), "visible")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Level = "chatty" }, "invalid level"},
		{"bad format", func(c *Config) { c.Format = "yaml" }, "format must be"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }, "empty value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
