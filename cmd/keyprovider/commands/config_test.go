package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/keyprovider/internal/app"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadConfig_Precedence(t *testing.T) {
	root := t.TempDir()
	path := writeConfigFile(t, `
log_level = "debug"
log_format = "text"

[store]
file = "`+filepath.Join(root, "from-file", "keys.ini")+`"

[lock]
timeout = "3s"
`)

	cfg, err := loadConfig(configSource{
		path: path,
		environ: environ(
			"KEYPROVIDER_LOCK__TIMEOUT=4s",
			"KEYPROVIDER_LOG_FORMAT=json",
			"KEYPROVIDER_STORE__STATIC_DIR="+filepath.Join(root, "static.d"),
			"UNRELATED=1",
		),
		flags: map[string]any{
			"log_format":   "text",
			"lock.dir":     filepath.Join(root, "locks"),
			"lock.timeout": 5 * time.Second,
		},
	})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log level from file", cfg.LogLevel, slog.LevelDebug},
		{"store file from file", cfg.Store.File, filepath.Join(root, "from-file", "keys.ini")},
		{"store dir defaulted", cfg.Store.Dir, filepath.Join(root, "from-file")},
		{"static dir from env", cfg.Store.StaticDir, filepath.Join(root, "static.d")},
		{"log format flag beats env", cfg.LogFormat, app.LogFormatText},
		{"lock timeout flag beats env and file", cfg.Lock.Timeout, 5 * time.Second},
		{"lock dir from flag", cfg.Lock.Dir, filepath.Join(root, "locks")},
		{"exporter defaulted", cfg.LogExporter, app.DefaultConfigLogExporter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadConfig_FallbackFile(t *testing.T) {
	root := t.TempDir()
	fallback := writeConfigFile(t, "[store]\nfile = \""+filepath.Join(root, "keys.ini")+"\"\n")

	cfg, err := loadConfig(configSource{fallback: fallback})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Store.File != filepath.Join(root, "keys.ini") {
		t.Errorf("Store.File = %q", cfg.Store.File)
	}

	// A missing fallback is not an error
	if _, err := loadConfig(configSource{
		fallback: filepath.Join(root, "missing.toml"),
		flags:    map[string]any{"store.file": filepath.Join(root, "keys.ini")},
	}); err != nil {
		t.Errorf("loadConfig with missing fallback failed: %v", err)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		src  configSource
	}{
		{
			name: "missing explicit file",
			src:  configSource{path: filepath.Join(root, "missing.toml")},
		},
		{
			name: "malformed file",
			src:  configSource{path: writeConfigFile(t, "log_level = \n")},
		},
		{
			name: "invalid format",
			src: configSource{flags: map[string]any{
				"store.file": filepath.Join(root, "keys.ini"),
				"log_format": "yaml",
			}},
		},
		{
			name: "store file outside store dir",
			src: configSource{environ: environ(
				"KEYPROVIDER_STORE__FILE="+filepath.Join(root, "a", "keys.ini"),
				"KEYPROVIDER_STORE__DIR="+filepath.Join(root, "b"),
			)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(tt.src); err == nil {
				t.Errorf("loadConfig succeeded")
			}
		})
	}
}

func TestConfigFlagValues(t *testing.T) {
	var got map[string]any
	root := newRootCommand()
	root.Commands = []*cli.Command{{
		Name:  "probe",
		Flags: schemeFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			got = configFlagValues(cmd)
			return nil
		},
	}}

	err := root.Run(context.Background(), []string{
		"keyprovider",
		"--store--static-dir", "/static",
		"--lock--timeout", "2s",
		"--lock--disabled",
		"probe", "--scheme-key", "K",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := map[string]any{
		"store.static_dir": "/static",
		"lock.timeout":     2 * time.Second,
		"lock.disabled":    true,
	}
	if len(got) != len(want) {
		t.Errorf("configFlagValues = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}
