package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bidsify/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BIDSIFY_SUBJECT", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "bids") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	wantLog := filepath.Join(tempHome, ".local", "share", "bidsify", "logs")
	if cfg.Paths.LogDir != wantLog {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLog)
	}
	if cfg.HistoryPath() != filepath.Join(wantLog, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.HistoryPath())
	}
	if cfg.Converter.Binary != "dcm2niix" || cfg.Converter.CompressionLevel != 7 {
		t.Fatalf("unexpected converter defaults: %+v", cfg.Converter)
	}
	if !cfg.Converter.BIDSSidecar {
		t.Fatal("expected BIDS sidecars enabled by default")
	}
	if diff := cmp.Diff([]string{"(MB4iPAT2)"}, cfg.Classifier.AccelerationMarkers); diff != "" {
		t.Fatalf("markers mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Workflow.ContinueOnError {
		t.Fatal("expected continue_on_error default true")
	}
	if err := cfg.ValidateRun(); err == nil {
		t.Fatal("expected ValidateRun to require a subject")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bidsify.toml")
	content := `
[paths]
output_dir = "` + filepath.Join(tempDir, "out") + `"
log_dir = "` + filepath.Join(tempDir, "logs") + `"

[subject]
id = "sub-007"

[[sessions]]
id = " ses-1 "
source_dir = "` + filepath.Join(tempDir, "dicom", "1") + `"

[[sessions]]
id = "ses-2"
source_dir = "` + filepath.Join(tempDir, "dicom", "2") + `"

[converter]
compression_level = 3
bids_sidecar = false

[classifier]
acceleration_markers = ["(MB4iPAT2)", " (MB6) ", "", "(MB6)"]

[workflow]
continue_on_error = false

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Subject.ID != "007" {
		t.Fatalf("expected sub- prefix trimmed, got %q", cfg.Subject.ID)
	}
	if diff := cmp.Diff([]string{"ses-1", "ses-2"}, cfg.SessionIDs()); diff != "" {
		t.Fatalf("session ids mismatch (-want +got):\n%s", diff)
	}
	if cfg.Sessions[1].SourceDir != filepath.Join(tempDir, "dicom", "2") {
		t.Fatalf("unexpected source dir %q", cfg.Sessions[1].SourceDir)
	}
	if cfg.Converter.CompressionLevel != 3 || cfg.Converter.BIDSSidecar {
		t.Fatalf("unexpected converter: %+v", cfg.Converter)
	}
	if diff := cmp.Diff([]string{"(MB4iPAT2)", "(MB6)"}, cfg.Classifier.AccelerationMarkers); diff != "" {
		t.Fatalf("markers mismatch (-want +got):\n%s", diff)
	}
	if cfg.Workflow.ContinueOnError {
		t.Fatal("expected continue_on_error false")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("ValidateRun returned error: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bidsify.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"subject charset", func(c *config.Config) { c.Subject.ID = "00-7" }, "subject.id"},
		{"empty session id", func(c *config.Config) { c.Sessions = []config.Session{{SourceDir: "/x"}} }, "sessions[0].id"},
		{"duplicate session", func(c *config.Config) {
			c.Sessions = []config.Session{{ID: "ses-1", SourceDir: "/a"}, {ID: "ses-1", SourceDir: "/b"}}
		}, "duplicated"},
		{"session path", func(c *config.Config) { c.Sessions = []config.Session{{ID: "a/b", SourceDir: "/a"}} }, "single path element"},
		{"compression", func(c *config.Config) { c.Converter.CompressionLevel = 12 }, "compression_level"},
		{"timeout", func(c *config.Config) { c.Converter.TimeoutSeconds = -1 }, "timeout_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestValidateRunRequiresSessionSource(t *testing.T) {
	cfg := config.Default()
	cfg.Subject.ID = "001"
	if err := cfg.ValidateRun(); err == nil {
		t.Fatal("expected error when no sessions are configured")
	}
	cfg.Sessions = []config.Session{{ID: "ses-1"}}
	if err := cfg.ValidateRun(); err == nil || !strings.Contains(err.Error(), "dicom_root") {
		t.Fatalf("expected source_dir error, got %v", err)
	}
}

func TestSessionSourceDerivedFromDicomRoot(t *testing.T) {
	t.Setenv("BIDSIFY_SUBJECT", "")
	tempDir := t.TempDir()
	root := filepath.Join(tempDir, "dicom")
	configPath := filepath.Join(tempDir, "bidsify.toml")
	content := `
[paths]
output_dir = "` + filepath.Join(tempDir, "out") + `"
log_dir = "` + filepath.Join(tempDir, "logs") + `"
dicom_root = "` + root + `"

[subject]
id = "007"

[[sessions]]
id = "ses-1"

[[sessions]]
id = "ses-2"
source_dir = "` + filepath.Join(tempDir, "elsewhere") + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("ValidateRun: %v", err)
	}
	got := []string{cfg.Sessions[0].SourceDir, cfg.Sessions[1].SourceDir}
	want := []string{
		filepath.Join(root, "sub-007", "ses-1", "func"),
		filepath.Join(tempDir, "elsewhere"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("source dirs mismatch (-want +got):\n%s", diff)
	}

	if err := cfg.Apply(config.Overrides{Subject: "042"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want[0] = filepath.Join(root, "sub-042", "ses-1", "func")
	got = []string{cfg.Sessions[0].SourceDir, cfg.Sessions[1].SourceDir}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("source dirs after subject override (-want +got):\n%s", diff)
	}
}

func TestSessionSourceLayout(t *testing.T) {
	t.Setenv("BIDSIFY_SUBJECT", "")
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DicomRoot = filepath.Join(base, "raw")
	cfg.Converter.SourceLayout = "{root}/{subject}/{session}"

	err := cfg.Apply(config.Overrides{Subject: "001", Sessions: []config.Session{{ID: "ses-4"}}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := filepath.Join(base, "raw", "001", "ses-4"); cfg.Sessions[0].SourceDir != want {
		t.Fatalf("got %q want %q", cfg.Sessions[0].SourceDir, want)
	}

	cfg.Converter.SourceLayout = "{root}/shared"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "{session}") {
		t.Fatalf("expected layout error, got %v", err)
	}
}

func TestSubjectFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BIDSIFY_SUBJECT", "042")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Subject.ID != "042" {
		t.Fatalf("expected subject from env, got %q", cfg.Subject.ID)
	}
}

func TestParseSessionFlag(t *testing.T) {
	s, err := config.ParseSessionFlag("ses-1=/data/dicom/ses-1")
	if err != nil {
		t.Fatalf("ParseSessionFlag returned error: %v", err)
	}
	if s.ID != "ses-1" || s.SourceDir != "/data/dicom/ses-1" {
		t.Fatalf("unexpected session: %+v", s)
	}
	bare, err := config.ParseSessionFlag("ses-3")
	if err != nil || bare.ID != "ses-3" || bare.SourceDir != "" {
		t.Fatalf("bare id: got %+v, %v", bare, err)
	}
	for _, bad := range []string{"", "=/x", "ses-1="} {
		if _, err := config.ParseSessionFlag(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Subject.ID != "001" || len(cfg.Sessions) != 2 {
		t.Fatalf("unexpected sample contents: %+v", cfg)
	}
	home := os.Getenv("HOME")
	if want := filepath.Join(home, "dicom", "sub-001", "ses-1", "func"); cfg.Sessions[0].SourceDir != want {
		t.Fatalf("derived source: got %q want %q", cfg.Sessions[0].SourceDir, want)
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("sample config should be runnable: %v", err)
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Setenv("BIDSIFY_SUBJECT", "")
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	stop := false

	err := cfg.Apply(config.Overrides{
		Subject:         "sub-007",
		OutputDir:       filepath.Join(base, "out"),
		Sessions:        []config.Session{{ID: "ses-2", SourceDir: filepath.Join(base, "dicom")}},
		ContinueOnError: &stop,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if cfg.Subject.ID != "007" {
		t.Fatalf("expected prefix stripped, got %q", cfg.Subject.ID)
	}
	if cfg.Paths.OutputDir != filepath.Join(base, "out") || cfg.Workflow.ContinueOnError {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"ses-2"}, cfg.SessionIDs()); diff != "" {
		t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
	}

	if err := cfg.Apply(config.Overrides{Subject: "bad id"}); err == nil {
		t.Fatal("expected validation error for non-alphanumeric subject")
	}
}
