package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	// DicomRoot is the {root} of converter.source_layout.
	DicomRoot string `toml:"dicom_root"`
}

// Subject identifies the participant being converted.
type Subject struct {
	ID string `toml:"id"`
}

// Session maps a session identifier to the directory holding its raw DICOM data.
// An empty SourceDir is derived from paths.dicom_root and converter.source_layout.
type Session struct {
	ID        string `toml:"id"`
	SourceDir string `toml:"source_dir"`
	// Derived marks a SourceDir filled in from the layout, so it follows
	// later subject overrides.
	Derived bool `toml:"-"`
}

// Converter contains dcm2niix invocation settings.
type Converter struct {
	Binary           string `toml:"binary"`
	CompressionLevel int    `toml:"compression_level"`
	FilenameFormat   string `toml:"filename_format"`
	BIDSSidecar      bool   `toml:"bids_sidecar"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	// SourceLayout locates a session's DICOM directory under paths.dicom_root.
	// Placeholders: {root}, {subject} (bare id), {session}.
	SourceLayout string `toml:"source_layout"`
}

// Classifier contains filename classification settings.
type Classifier struct {
	// AccelerationMarkers are stripped from functional task names, e.g. "(MB4iPAT2)".
	AccelerationMarkers []string `toml:"acceleration_markers"`
}

// Workflow controls session iteration.
type Workflow struct {
	ContinueOnError bool `toml:"continue_on_error"`
}

// History controls the SQLite run history.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for bidsify.
//
// Configuration sections:
//   - Paths: BIDS output root and log directory
//   - Subject / Sessions: what to convert
//   - Converter: dcm2niix settings
//   - Classifier: task-name acceleration markers
//   - Workflow: continue or stop after a failed session
//   - History: SQLite audit trail of every placement
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Subject    Subject    `toml:"subject"`
	Sessions   []Session  `toml:"sessions"`
	Converter  Converter  `toml:"converter"`
	Classifier Classifier `toml:"classifier"`
	Workflow   Workflow   `toml:"workflow"`
	History    History    `toml:"history"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("bidsify.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output root and log directory. Both already
// existing is the normal case.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite history database location.
func (c *Config) HistoryPath() string {
	if path := strings.TrimSpace(c.History.Path); path != "" {
		return path
	}
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// LogPath returns the log file written alongside stderr output. It is empty
// when no log directory is configured.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "bidsify.log")
}

// LockDir returns the directory holding per-subject run locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.LogDir, "locks")
}

// SessionIDs returns the configured session identifiers in file order.
func (c *Config) SessionIDs() []string {
	ids := make([]string, 0, len(c.Sessions))
	for _, s := range c.Sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

// ParseSessionFlag parses a command-line session override of the form
// "ses-1=/path/to/dicom". A bare "ses-1" leaves the source directory to
// paths.dicom_root and converter.source_layout.
func ParseSessionFlag(value string) (Session, error) {
	id, dir, ok := strings.Cut(value, "=")
	id = strings.TrimSpace(id)
	dir = strings.TrimSpace(dir)
	if id == "" || (ok && dir == "") {
		return Session{}, fmt.Errorf("session %q: expected <id> or <id>=<source_dir>", value)
	}
	if !ok {
		return Session{ID: id}, nil
	}
	expanded, err := expandPath(dir)
	if err != nil {
		return Session{}, fmt.Errorf("session %q: %w", id, err)
	}
	return Session{ID: id, SourceDir: expanded}, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
