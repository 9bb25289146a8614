package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"bidsify/internal/config"
	"bidsify/internal/services"
	"bidsify/internal/testsupport"
)

const stubDcm2niix = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
  esac
  shift
done
echo "Chris Rorden's dcm2niiX version v1.0.20240202"
for f in a_diff.nii.gz b_MPRAGE.nii.gz c_bold_rest.nii.gz d_localizer.nii.gz; do
  echo "Convert 1 DICOM as $out/$f (64x64x32x1)"
  : > "$out/$f"
done
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	opts = append([]testsupport.ConfigOption{
		testsupport.WithSubject("007"),
		testsupport.WithSession("ses-2"),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", base)

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "dcm2niix"), []byte(stubDcm2niix), 0o755); err != nil {
		t.Fatalf("write dcm2niix stub: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", e.configPath, "--log-level", "error"}, args...)...)
}

func (e *cliTestEnv) sessionDir() string {
	return filepath.Join(e.cfg.Paths.OutputDir, "sub-007", "ses-2")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func requireContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestConfigInitWritesSampleOnce(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", base)
	target := filepath.Join(base, "nested", "bidsify.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration", "subject.id")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}

	if _, err := runCLI(t, "config", "init", "--path", target); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "config", "validate", "--run")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, env.configPath, "Sessions: 1", "Configuration valid")
}

func TestConfigValidateRejectsUnknownKeys(t *testing.T) {
	env := setupCLITestEnv(t)
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := f.WriteString("\n[extra]\nkey = 1\n"); err != nil {
		t.Fatalf("append config: %v", err)
	}
	f.Close()

	if _, err := env.run(t, "config", "validate"); err == nil {
		t.Fatal("expected validation error for unknown section")
	}
}

func TestClassifyCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "classify", "a_diff.nii.gz", "b_MPRAGE.nii", "scan_bold_rest(MB4iPAT2).nii.gz", "notes.txt")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	requireContains(t, out,
		"dwi/sub-007_ses-2_dwi.nii.gz",
		"anat/sub-007_ses-2_acq-mprage_T1w.nii",
		"func/sub-007_ses-2_task-rest_bold.nii.gz",
		"misc/notes.txt",
	)
}

func TestClassifyCommandReportsMalformedTask(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "classify", "--session-id", "ses-9", "a_diff.nii.gz", "scan_bold")
	if err == nil {
		t.Fatal("expected error for bold file without a task")
	}
	if !strings.Contains(err.Error(), "scan_bold") {
		t.Fatalf("expected error to name the file, got %v", err)
	}
	requireContains(t, out, "sub-007_ses-9_dwi.nii.gz", "error")
}

func TestClassifyRules(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "classify", "--rules")
	if err != nil {
		t.Fatalf("classify --rules: %v", err)
	}
	requireContains(t, out, "MPRAGE", "acq-mprage_T1w", "task-<task>_bold", "(no match)")
}

func TestRunCommandConvertsAndOrganizes(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "ses-2", "1 succeeded, 0 failed, 0 skipped")

	want := []string{
		"anat/sub-007_ses-2_acq-mprage_T1w.nii.gz",
		"dwi/sub-007_ses-2_dwi.nii.gz",
		"func/sub-007_ses-2_task-rest_bold.nii.gz",
		"misc/d_localizer.nii.gz",
	}
	if diff := cmp.Diff(want, testsupport.Tree(t, env.sessionDir())); diff != "" {
		t.Fatalf("session tree mismatch (-want +got):\n%s", diff)
	}

	store := testsupport.MustOpenHistory(t, env.cfg)
	runs, err := store.ListRuns(context.Background(), "007", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "succeeded" {
		t.Fatalf("expected one succeeded run, got %+v", runs)
	}

	out, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, runs[0].ID[:8], "sub-007", "succeeded")

	out, err = env.run(t, "history", "show", runs[0].ID[:8])
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out,
		"Run "+runs[0].ID,
		"b_MPRAGE.nii.gz",
		filepath.Join("anat", "sub-007_ses-2_acq-mprage_T1w.nii.gz"),
	)

	out, err = env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Configuration", "sub-007", "ses-2", "yes", "succeeded")
}

func TestRunCommandFailsOnRerun(t *testing.T) {
	env := setupCLITestEnv(t)
	if out, err := env.run(t, "run"); err != nil {
		t.Fatalf("first run: %v\n%s", err, out)
	}

	out, err := env.run(t, "run")
	if err == nil {
		t.Fatal("expected second run to fail")
	}
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	requireContains(t, out, "0 succeeded, 1 failed")
}

func TestRunCommandFailsPreflightWithoutConverter(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Converter.Binary = "bidsify-test-missing-dcm2niix"
	writeTestConfig(t, env.configPath, env.cfg)

	_, err := env.run(t, "run")
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if _, statErr := os.Stat(env.sessionDir()); !os.IsNotExist(statErr) {
		t.Fatalf("expected no session directory, stat err = %v", statErr)
	}
}

func TestRunCommandRequiresSessions(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Sessions = nil
	writeTestConfig(t, env.configPath, env.cfg)

	_, err := env.run(t, "run")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSessionFlagOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	src := filepath.Join(env.baseDir, "dicom", "ses-7")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	out, err := env.run(t, "--session", "ses-7="+src, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	dir := filepath.Join(env.cfg.Paths.OutputDir, "sub-007", "ses-7")
	if _, err := os.Stat(filepath.Join(dir, "dwi", "sub-007_ses-7_dwi.nii.gz")); err != nil {
		t.Fatalf("expected ses-7 output: %v", err)
	}
	if _, err := os.Stat(env.sessionDir()); !os.IsNotExist(err) {
		t.Fatalf("configured session should be replaced by the flag, stat err = %v", err)
	}
}

func TestOrganizeDryRunLeavesFilesInPlace(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := env.sessionDir()
	for _, name := range []string{"a_diff.nii.gz", "b_MPRAGE.nii"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 16)
	}

	out, err := env.run(t, "organize", "--dry-run")
	if err != nil {
		t.Fatalf("organize --dry-run: %v", err)
	}
	requireContains(t, out, "sub-007_ses-2_dwi.nii.gz", "sub-007_ses-2_acq-mprage_T1w.nii", "Dry run")
	if diff := cmp.Diff([]string{"a_diff.nii.gz", "b_MPRAGE.nii"}, testsupport.Tree(t, dir)); diff != "" {
		t.Fatalf("dry run changed the tree (-want +got):\n%s", diff)
	}
}

func TestOrganizeConvertedSession(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := env.sessionDir()
	testsupport.WriteFile(t, filepath.Join(dir, "c_bold_rest.nii.gz"), 8)
	testsupport.WriteFile(t, filepath.Join(dir, "c_bold_rest.json"), 8)

	out, err := env.run(t, "organize", "ses-2")
	if err != nil {
		t.Fatalf("organize: %v\n%s", err, out)
	}
	want := []string{
		"func/sub-007_ses-2_task-rest_bold.json",
		"func/sub-007_ses-2_task-rest_bold.nii.gz",
	}
	if diff := cmp.Diff(want, testsupport.Tree(t, dir)); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestOrganizeRejectsSessionOutsideSubject(t *testing.T) {
	env := setupCLITestEnv(t)
	outside := filepath.Join(env.cfg.Paths.OutputDir, "x")
	testsupport.WriteFile(t, filepath.Join(outside, "a_diff.nii.gz"), 8)

	for _, id := range []string{"../x", "..", "ses-2/../../x"} {
		_, err := env.run(t, "organize", id)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("organize %q: expected configuration error, got %v", id, err)
		}
	}
	if diff := cmp.Diff([]string{"a_diff.nii.gz"}, testsupport.Tree(t, outside)); diff != "" {
		t.Fatalf("directory outside the subject changed (-want +got):\n%s", diff)
	}
}

func TestStatusWithoutHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.History.Enabled = false
	writeTestConfig(t, env.configPath, env.cfg)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "disabled", "ses-2", "no")

	if _, err := env.run(t, "history"); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected history disabled error, got %v", err)
	}
}

func TestStatusSuggestsInstallingMissingConverter(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Converter.Binary = "bidsify-test-missing-dcm2niix"
	writeTestConfig(t, env.configPath, env.cfg)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not found in PATH", "Install dcm2niix or set converter.binary")
}

func TestLogsCommandTailsLogFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := "INFO workflow: run started run_id=aaa\nINFO workflow: run started run_id=bbb\nINFO workflow: run finished run_id=aaa\n"
	if err := os.WriteFile(env.cfg.LogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := env.run(t, "logs", "--run", "aaa")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	want := "INFO workflow: run started run_id=aaa\nINFO workflow: run finished run_id=aaa\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("logs output mismatch (-want +got):\n%s", diff)
	}

	out, err = env.run(t, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs -n 1: %v", err)
	}
	requireContains(t, out, "run finished")
}

func TestOrganizeDryRunDetectsOrganizedSession(t *testing.T) {
	env := setupCLITestEnv(t)
	if out, err := env.run(t, "run"); err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	before := testsupport.Tree(t, env.sessionDir())

	_, err := env.run(t, "organize", "--dry-run")
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if diff := cmp.Diff(before, testsupport.Tree(t, env.sessionDir())); diff != "" {
		t.Fatalf("dry run changed the tree (-want +got):\n%s", diff)
	}
}
