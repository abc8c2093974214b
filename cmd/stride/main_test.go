package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stride/internal/config"
	"stride/internal/daemon"
	"stride/internal/ipc"
	"stride/internal/logging"
	"stride/internal/store"
	"stride/internal/testsupport"
)

const cliFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Trail Talk</title>
    <description>Weekly trail running interviews</description>
    <item>
      <title>Ridgeline Repeats</title>
      <guid>tt-001</guid>
      <enclosure url="https://cdn.example.com/tt-001.mp3" length="4096" type="audio/mpeg"/>
      <pubDate>Mon, 10 Aug 2026 06:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithMountPath(t.TempDir()))
	cfg.Paths.APIBind = ""
	cfg.Device.AutoSync = false

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, st, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(testsupport.BaseDir(cfg), "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(cliFeedXML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCLIPodcastLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)
	feed := newFeedServer(t)

	out, _, err := runCLI(t, []string{"add", feed.URL, "--no-auto-download"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "Trail Talk") {
		t.Fatalf("unexpected add output: %q", out)
	}

	out, _, err = runCLI(t, []string{"list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Trail Talk") {
		t.Fatalf("list missing subscription: %q", out)
	}

	out, _, err = runCLI(t, []string{"episodes", "list", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("episodes list: %v", err)
	}
	if !strings.Contains(out, "Ridgeline Repeats") || !strings.Contains(out, "pending") {
		t.Fatalf("unexpected episodes output: %q", out)
	}

	out, _, err = runCLI(t, []string{"show", "1", "--limit", "3"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Episode limit: 3") {
		t.Fatalf("expected updated limit in output: %q", out)
	}

	out, _, err = runCLI(t, []string{"refresh", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !strings.Contains(out, "Refreshed 1 feeds, 0 new episodes") {
		t.Fatalf("unexpected refresh output: %q", out)
	}

	out, _, err = runCLI(t, []string{"remove", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !strings.Contains(out, "Removed podcast 1") {
		t.Fatalf("unexpected remove output: %q", out)
	}

	out, _, err = runCLI(t, []string{"list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("list after remove: %v", err)
	}
	if !strings.Contains(out, "No subscriptions") {
		t.Fatalf("expected empty list message: %q", out)
	}
}

func TestCLISettingsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"settings", "set", "audio.bitrate=192k"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("settings set: %v", err)
	}
	if !strings.Contains(out, "Updated 1 settings") {
		t.Fatalf("unexpected set output: %q", out)
	}

	out, _, err = runCLI(t, []string{"settings", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("settings list: %v", err)
	}
	if !strings.Contains(out, "192k") || !strings.Contains(out, "Adjustable keys:") {
		t.Fatalf("unexpected list output: %q", out)
	}

	if _, _, err := runCLI(t, []string{"settings", "set", "bogus-key=1"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown setting key to fail")
	}

	out, _, err = runCLI(t, []string{"settings", "reset"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("settings reset: %v", err)
	}
	if !strings.Contains(out, "reset") {
		t.Fatalf("unexpected reset output: %q", out)
	}
}

func TestCLIStatusAndDevice(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Not running") {
		t.Fatalf("expected not-running status, got %q", out)
	}
	if !strings.Contains(out, "Podcasts") {
		t.Fatalf("expected library section, got %q", out)
	}

	out, _, err = runCLI(t, []string{"device"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	if !strings.Contains(out, "No watch detected") {
		t.Fatalf("unexpected device output: %q", out)
	}
}

func TestCLISyncAndStorage(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"sync", "history"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync history: %v", err)
	}
	if !strings.Contains(out, "No sync runs recorded") {
		t.Fatalf("unexpected history output: %q", out)
	}

	if _, _, err := runCLI(t, []string{"sync", "now"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected sync without a mounted watch to fail")
	}

	out, _, err = runCLI(t, []string{"storage", "usage"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("storage usage: %v", err)
	}
	if !strings.Contains(out, "Database:") {
		t.Fatalf("unexpected usage output: %q", out)
	}

	out, _, err = runCLI(t, []string{"storage", "cleanup", "--pass", "failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("storage cleanup: %v", err)
	}
	if !strings.Contains(out, "Removed 0 episodes") {
		t.Fatalf("unexpected cleanup output: %q", out)
	}
}

func TestCLIDialErrorMessage(t *testing.T) {
	env := setupCLITestEnv(t)

	missing := filepath.Join(testsupport.BaseDir(env.cfg), "missing.sock")
	_, _, err := runCLI(t, []string{"list"}, missing, env.configPath)
	if err == nil {
		t.Fatal("expected dial failure for missing socket")
	}
	if !strings.Contains(err.Error(), "start the daemon") {
		t.Fatalf("unexpected dial error: %v", err)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
episodes_dir = %q
converted_dir = %q
log_dir = %q
api_bind = ""

[device]
mount_path = %q
auto_sync = false
`,
		cfg.Paths.DataDir,
		cfg.Paths.EpisodesDir,
		cfg.Paths.ConvertedDir,
		cfg.Paths.LogDir,
		cfg.Device.MountPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
