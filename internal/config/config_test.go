package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTOML(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const minimalConfig = `
[matrix]
homeserver_url = "https://matrix.example.org"
user_id = "@bridge:example.org"
access_token = "secret"
room_id = "!ops:example.org"
`

func TestLoadSnapshotAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeTOML(t, t.TempDir(), "config.toml", minimalConfig)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.Mode != ServiceModeSingle {
		t.Fatalf("expected single mode default, got %q", cfg.Service.Mode)
	}
	if cfg.Service.TickIntervalSec != 60 {
		t.Fatalf("expected 60s tick default, got %d", cfg.Service.TickIntervalSec)
	}
	if cfg.HTTP.Listen != ":8080" || cfg.HTTP.WebhookPath != "/webhook" {
		t.Fatalf("unexpected http defaults %+v", cfg.HTTP)
	}
	if cfg.Summary.ScheduleCrit != "6:00,14:30" || cfg.Summary.ScheduleWarn != "6:00,14:30" {
		t.Fatalf("unexpected schedule defaults %+v", cfg.Summary)
	}
	if cfg.Grafana.SilenceHours != 24 {
		t.Fatalf("expected 24h silence default, got %d", cfg.Grafana.SilenceHours)
	}
	if cfg.Matrix.MuteReaction == "" || cfg.Matrix.ConfirmReaction == "" || cfg.Matrix.FailReaction == "" {
		t.Fatalf("reaction defaults missing: %+v", cfg.Matrix)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("console sink must default on")
	}
}

func TestLoadSnapshotRequiresMatrixCredentials(t *testing.T) {
	t.Parallel()

	path := writeTOML(t, t.TempDir(), "config.toml", `
[matrix]
homeserver_url = "https://matrix.example.org"
user_id = "@bridge:example.org"
room_id = "!ops:example.org"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil || !strings.Contains(err.Error(), "access_token") {
		t.Fatalf("expected access_token error, got %v", err)
	}
}

func TestLoadSnapshotRejectsBadRoomID(t *testing.T) {
	t.Parallel()

	path := writeTOML(t, t.TempDir(), "config.toml", `
[matrix]
homeserver_url = "https://matrix.example.org"
user_id = "@bridge:example.org"
access_token = "secret"
room_id = "ops:example.org"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil || !strings.Contains(err.Error(), "room_id") {
		t.Fatalf("expected room_id error, got %v", err)
	}
}

func TestLoadSnapshotMergesDirectoryFragments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTOML(t, dir, "10-base.toml", minimalConfig+`
[summary]
schedule_crit = "8:00"
schedule_warn = "9:00"
`)
	writeTOML(t, dir, "20-override.toml", `
[summary]
schedule_crit = "6:30,18:00"
`)

	cfg, err := LoadSnapshot(ConfigSource{Dir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Summary.ScheduleCrit != "6:30,18:00" {
		t.Fatalf("later fragment must win, got %q", cfg.Summary.ScheduleCrit)
	}
	if cfg.Matrix.AccessToken != "secret" {
		t.Fatalf("earlier sections must survive, got %+v", cfg.Matrix)
	}
}

func TestLoadSnapshotNATSMode(t *testing.T) {
	t.Parallel()

	path := writeTOML(t, t.TempDir(), "config.toml", minimalConfig+`
[service]
mode = "nats"

[nats]
url = ["nats://10.0.0.1:4222"]
allow_create_buckets = true
`)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	derived := DeriveStateNATSConfig(cfg)
	if len(derived.URL) != 1 || derived.URL[0] != "nats://10.0.0.1:4222" {
		t.Fatalf("unexpected derived urls %+v", derived.URL)
	}
	if derived.AlertBucket != "alerts" || derived.MessageBucket != "messages" || derived.SummaryBucket != "summaries" {
		t.Fatalf("bucket names must be fixed, got %+v", derived)
	}
	if !derived.AllowCreateBuckets {
		t.Fatalf("allow_create_buckets must pass through")
	}
}

func TestFromCLIRequiresExactlyOneSource(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error for no source")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error for both sources")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected source %+v err %v", src, err)
	}
}

func TestValidateLogSinkRequiresFilePath(t *testing.T) {
	t.Parallel()

	path := writeTOML(t, t.TempDir(), "config.toml", minimalConfig+`
[log.file]
enabled = true
level = "info"
`)
	if _, err := LoadSnapshot(ConfigSource{File: path}); err == nil || !strings.Contains(err.Error(), "log.file.path") {
		t.Fatalf("expected log.file.path error, got %v", err)
	}
}
