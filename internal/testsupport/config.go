package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bidsify/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "bids")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.History.Path = filepath.Join(base, "logs", "history.db")
	cfgVal.Subject.ID = "001"
	cfgVal.Sessions = nil

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSubject sets the subject identifier on the test config.
func WithSubject(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Subject.ID = id
	}
}

// WithSession appends a session whose source directory lives under the test
// base directory and is created empty.
func WithSession(id string) ConfigOption {
	return func(b *configBuilder) {
		src := filepath.Join(b.baseDir, "dicom", id)
		if err := os.MkdirAll(src, 0o755); err != nil {
			b.t.Fatalf("mkdir source dir: %v", err)
		}
		b.cfg.Sessions = append(b.cfg.Sessions, config.Session{ID: id, SourceDir: src})
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, dcm2niix is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"dcm2niix"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
		b.cfg.Converter.Binary = "dcm2niix"
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
