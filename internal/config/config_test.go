package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestParseYAMLAndJSONAgree(t *testing.T) {
	dir := t.TempDir()
	y := writeFile(t, dir, "c.yaml", `
telegram:
  token: abc
  poll_timeout: 10s
storage:
  driver: sqlite
  path: ./alerts.db
dispatcher:
  max_concurrent: 5
  max_retries: 0
sweeper:
  schedule: "0 17 * * *"
`)
	j := writeFile(t, dir, "c.json", `{
  "telegram": {"token": "abc", "poll_timeout": "10s"},
  "storage": {"driver": "sqlite", "path": "./alerts.db"},
  "dispatcher": {"max_concurrent": 5, "max_retries": 0},
  "sweeper": {"schedule": "0 17 * * *"}
}`)

	t.Setenv(EnvTelegramToken, "")
	fromYAML, err := NewConfigManager(y).Parse()
	if err != nil {
		t.Fatalf("yaml parse: %v", err)
	}
	fromJSON, err := NewConfigManager(j).Parse()
	if err != nil {
		t.Fatalf("json parse: %v", err)
	}
	if hashConfig(fromYAML) != hashConfig(fromJSON) {
		t.Fatalf("yaml and json configs differ:\n%+v\n%+v", fromYAML, fromJSON)
	}
	if fromYAML.Dispatcher.MaxRetries == nil || *fromYAML.Dispatcher.MaxRetries != 0 {
		t.Fatalf("explicit max_retries: 0 must survive decoding")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.json", `{"telegram": {"tokn": "x"}}`)
	if _, err := NewConfigManager(p).Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.json", `{} {}`)
	_, err := NewConfigManager(p).Parse()
	if err == nil || !strings.Contains(err.Error(), "trailing data") {
		t.Fatalf("expected trailing data error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	neg := -1
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty ok", cfg: Config{}},
		{name: "bad duration", cfg: Config{Dispatcher: DispatcherConfig{RetryBase: "soon"}}, wantErr: "dispatcher.retry_base"},
		{name: "bad driver", cfg: Config{Storage: StorageConfig{Driver: "mysql"}}, wantErr: "storage.driver"},
		{name: "negative retries", cfg: Config{Dispatcher: DispatcherConfig{MaxRetries: &neg}}, wantErr: "max_retries"},
		{name: "bad tz", cfg: Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, wantErr: "scheduler.timezone"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestEnvOverridesToken(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "SATSALERT_STORAGE_DSN=postgres://from-dotenv\n")
	p := writeFile(t, dir, "c.json", `{"telegram": {"token": "file-token"}}`)

	t.Setenv(EnvTelegramToken, "env-token")
	t.Setenv(EnvStorageDSN, "")
	os.Unsetenv(EnvStorageDSN)
	if err := LoadDotEnv(envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	cfg, err := NewConfigManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Storage.DSN != "postgres://from-dotenv" {
		t.Fatalf("dsn = %q", cfg.Storage.DSN)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "150ms", time.Second)
	if err != nil || d != 150*time.Millisecond {
		t.Fatalf("explicit: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration must fail")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Storage: StorageConfig{DSN: "postgres://u:p@h/db"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "b", PollTimeout: "5s"}, Storage: StorageConfig{DSN: "postgres://u:q@h/db"}}

	changed, _ := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"storage", "telegram"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Poll: PollConfig{Interval: "1s"}}
	second := &Config{Poll: PollConfig{Interval: "2s"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatalf("expected newest config, got %+v", got)
	}
}

func TestReloadSkipsUnchanged(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.json", `{"poll": {"interval": "30s"}}`)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.reload(ctx)
	select {
	case <-ch:
		t.Fatalf("unchanged reload must not publish")
	default:
	}

	writeFile(t, filepath.Dir(p), "c.json", `{"poll": {"interval": "45s"}}`)
	m.reload(ctx)
	select {
	case got := <-ch:
		if got.Poll.Interval != "45s" {
			t.Fatalf("interval = %q", got.Poll.Interval)
		}
	default:
		t.Fatalf("changed reload must publish")
	}
}
