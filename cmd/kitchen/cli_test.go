package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output %q does not contain %q", output, want)
	}
}

func writeJobConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifest := filepath.Join(dir, "manifest.csv")
	if err := os.WriteFile(manifest, []byte("asset_id,media_filename\ncpb-aacip-111,cpb-aacip-111.mp4\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	content := "id = \"cli_test\"\n\n" +
		"[paths]\n" +
		"manifest = \"" + manifest + "\"\n" +
		"results_dir = \"" + filepath.Join(dir, "results") + "\"\n" +
		"media_dir = \"" + filepath.Join(dir, "media") + "\"\n\n" +
		"[[stage]]\n" +
		"image = \"ghcr.io/clamsproject/app-example:v1\"\n"
	path := filepath.Join(dir, "job.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write job config: %v", err)
	}
	return path
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "job.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample job configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected error when target exists without --overwrite")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	path := writeJobConfig(t)

	out, err := runCLI(t, []string{"config", "validate", path})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "is valid")
	requireContains(t, out, "cli_test")
}

func TestRunlogShowEmptyLedger(t *testing.T) {
	path := writeJobConfig(t)

	out, err := runCLI(t, []string{"runlog", "show", "--config", path})
	if err != nil {
		t.Fatalf("runlog show: %v", err)
	}
	requireContains(t, out, "No run log entries")
}
