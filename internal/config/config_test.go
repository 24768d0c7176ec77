package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lqerrors "github.com/fanzha/logquery/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultTemplate(t *testing.T) {
	path := writeConfig(t, DefaultConfigTemplate)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/log/app", cfg.LogDirectory)
	assert.True(t, cfg.IsRecursive())
	assert.Equal(t, 0, cfg.WorkerPoolSize)
	assert.Equal(t, "\n", cfg.Schema.RecordDelimiter)
	assert.Equal(t, "|", cfg.Schema.FieldDelimiter)
	require.Len(t, cfg.Schema.Fields, 5)
	assert.True(t, cfg.Schema.Fields[len(cfg.Schema.Fields)-1].Remainder)
	assert.Equal(t, "enumerate", cfg.Query.Mode)
	require.Len(t, cfg.Query.Conditions, 1)
	assert.Equal(t, "ERROR", cfg.Query.Conditions[0].Value)
	assert.Equal(t, "30s", cfg.ProgressInterval)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_directory: "/tmp/logs"
schema:
  fields:
    - name: "when"
      type: "time"
    - name: "msg"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "\n", cfg.Schema.RecordDelimiter)
	assert.Equal(t, "|", cfg.Schema.FieldDelimiter)
	assert.Equal(t, "enumerate", cfg.Query.Mode)
	assert.Equal(t, "string", cfg.Schema.Fields[1].Type)
	assert.Equal(t, "2006-01-02 15:04:05", cfg.Schema.Fields[0].Layout)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, lqerrors.ErrConfigNotFound))
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "log_directory: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lqerrors.ErrConfigInvalid))
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			LogDirectory: "/tmp/logs",
			Schema: SchemaConfig{
				RecordDelimiter: "\n",
				FieldDelimiter:  "|",
				Fields: []FieldConfig{
					{Name: "level", Type: "string"},
					{Name: "msg", Type: "string"},
				},
			},
			Query: QueryConfig{Mode: "enumerate"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing log directory", func(c *Config) { c.LogDirectory = "" }, false},
		{"negative pool size", func(c *Config) { c.WorkerPoolSize = -1 }, false},
		{"no fields", func(c *Config) { c.Schema.Fields = nil }, false},
		{"delimiter collision", func(c *Config) { c.Schema.FieldDelimiter = "\n" }, false},
		{"unnamed field", func(c *Config) { c.Schema.Fields[0].Name = "" }, false},
		{"duplicate field name", func(c *Config) { c.Schema.Fields[1].Name = "level" }, false},
		{"bad field type", func(c *Config) { c.Schema.Fields[0].Type = "blob" }, false},
		{"remainder not last", func(c *Config) { c.Schema.Fields[0].Remainder = true }, false},
		{"bad mode", func(c *Config) { c.Query.Mode = "explode" }, false},
		{"group mode without group_by", func(c *Config) { c.Query.Mode = "group" }, false},
		{"group_by unknown field", func(c *Config) { c.Query.Mode = "group"; c.Query.GroupBy = "nope" }, false},
		{"sort_by unknown field", func(c *Config) { c.Query.SortBy = "nope" }, false},
		{"condition on unknown field", func(c *Config) {
			c.Query.Conditions = []ConditionConfig{{Field: "nope", Value: "x"}}
		}, false},
		{"group mode ok", func(c *Config) { c.Query.Mode = "group"; c.Query.GroupBy = "level" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, lqerrors.ErrConfigInvalid))
			}
		})
	}
}

func TestIsRecursive(t *testing.T) {
	var c Config
	assert.True(t, c.IsRecursive())
	no := false
	c.Recursive = &no
	assert.False(t, c.IsRecursive())
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path))

	// The written template must load cleanly.
	// 写出的模板必须能直接加载通过。
	_, err := Load(path)
	require.NoError(t, err)

	// Refuses to overwrite.
	err = WriteDefault(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lqerrors.ErrConfigInvalid))
}
