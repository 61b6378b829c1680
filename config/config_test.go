package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MUSICHUD_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:3000" {
		t.Errorf("expected default base url, got %s", cfg.APIBaseURL)
	}
	if cfg.PlaybackInterval != time.Second || cfg.APITimeout != 10*time.Second {
		t.Errorf("unexpected durations %v %v", cfg.PlaybackInterval, cfg.APITimeout)
	}
	if !cfg.EnableIdlePlaylist || !cfg.VoteSkipEnabled || cfg.VoteSkipRatio != 0.5 || cfg.VoteSkipMinVotes != 1 {
		t.Errorf("unexpected playback defaults %+v", cfg)
	}
	if cfg.QRPollInterval != 5*time.Second || cfg.CacheTTL != 10*time.Minute {
		t.Errorf("unexpected qr/cache defaults %v %v", cfg.QRPollInterval, cfg.CacheTTL)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", cfg.Location())
	}
}

func TestEnvAndFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "musichud.toml")
	content := `
[playback]
interval_ms = 2500
timezone = "Asia/Shanghai"

[vote_skip]
required_ratio = 1.7
min_votes = 3

[log]
debug = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MUSICHUD_CONFIG", path)
	t.Setenv("NETEASE_API_BASE_URL", "http://api.local:4000")
	t.Setenv("VOTE_SKIP_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://api.local:4000" || cfg.VoteSkipEnabled {
		t.Errorf("expected env values, got %s %v", cfg.APIBaseURL, cfg.VoteSkipEnabled)
	}
	if cfg.PlaybackInterval != 2500*time.Millisecond || !cfg.Debug || cfg.VoteSkipMinVotes != 3 {
		t.Errorf("expected file overlay, got %+v", cfg)
	}
	if cfg.VoteSkipRatio != 1 {
		t.Errorf("expected ratio clamped to 1, got %v", cfg.VoteSkipRatio)
	}
	if cfg.Location().String() != "Asia/Shanghai" {
		t.Errorf("expected Asia/Shanghai, got %v", cfg.Location())
	}

	pc := cfg.PlayerConfig()
	if pc.Interval != 2500*time.Millisecond || pc.VoteSkipEnabled || pc.VoteSkipMinVotes != 3 {
		t.Errorf("unexpected player config %+v", pc)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[playback\ninterval_ms = "), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MUSICHUD_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Error("expected parse error")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "musichud.toml")
	if err := os.WriteFile(path, []byte("[vote_skip]\nmin_votes = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MUSICHUD_CONFIG", path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	if err := Watch(ctx, path, func(c *Config) { changes <- c }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("[vote_skip]\nmin_votes = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-changes:
		if cfg.VoteSkipMinVotes != 4 {
			t.Errorf("expected 4, got %d", cfg.VoteSkipMinVotes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected reload after write")
	}
}
