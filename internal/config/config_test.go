package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const validJSON = `{
  "telegram": {"token": "123:abc", "admin_ids": [900]},
  "logging": {"level": "info", "console": true},
  "storage": {"path": "/tmp/bot.db"},
  "broadcast": {"batch_size": 25, "batch_delay": "1s"},
  "monitor": {"check_interval": "1m", "timezone": "Europe/Moscow"}
}`

func TestLoadValid(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", validJSON)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || !cfg.IsAdmin(900) || cfg.IsAdmin(1) {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Location().String() != "Europe/Moscow" {
		t.Fatalf("location = %s", cfg.Location())
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
storage:
  path: /tmp/bot.db
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "/tmp/bot.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"telegram": {"token": "t", "tokne_typo": 1}, "storage": {"path": "x"}}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"telegram": {"token": "t"}, "storage": {"path": "x"}} {"extra": true}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"bad duration", func(c *Config) { c.Broadcast.BatchDelay = "soon" }, "broadcast.batch_delay"},
		{"bad timezone", func(c *Config) { c.Monitor.Timezone = "Mars/Olympus" }, "monitor.timezone"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &Config{}
			c.Telegram.Token = "t"
			c.Storage.Path = "/tmp/x.db"
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "ninety"); err == nil {
		t.Fatal("bad duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got %v, %v", d, err)
	}
}
