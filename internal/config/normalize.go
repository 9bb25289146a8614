package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSubject()
	c.normalizeConverter()
	if err := c.normalizeSessions(); err != nil {
		return err
	}
	c.normalizeClassifier()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DicomRoot, err = expandPath(strings.TrimSpace(c.Paths.DicomRoot)); err != nil {
		return fmt.Errorf("paths.dicom_root: %w", err)
	}
	return nil
}

func (c *Config) normalizeSubject() {
	c.Subject.ID = strings.TrimSpace(c.Subject.ID)
	if c.Subject.ID == "" {
		if value, ok := os.LookupEnv("BIDSIFY_SUBJECT"); ok {
			c.Subject.ID = strings.TrimSpace(value)
		}
	}
	c.Subject.ID = strings.TrimPrefix(c.Subject.ID, "sub-")
}

func (c *Config) normalizeSessions() error {
	for i := range c.Sessions {
		s := &c.Sessions[i]
		s.ID = strings.TrimSpace(s.ID)
		if s.Derived {
			s.SourceDir, s.Derived = "", false
		}
		dir := strings.TrimSpace(s.SourceDir)
		if dir == "" {
			s.SourceDir = c.sessionSource(s.ID)
			s.Derived = s.SourceDir != ""
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("sessions[%d].source_dir: %w", i, err)
		}
		s.SourceDir = expanded
	}
	return nil
}

// sessionSource expands converter.source_layout for one session. It returns
// "" until both paths.dicom_root and the subject are known.
func (c *Config) sessionSource(sessionID string) string {
	if c.Paths.DicomRoot == "" || c.Subject.ID == "" || sessionID == "" {
		return ""
	}
	path := strings.NewReplacer(
		"{root}", c.Paths.DicomRoot,
		"{subject}", c.Subject.ID,
		"{session}", sessionID,
	).Replace(c.Converter.SourceLayout)
	return filepath.Clean(path)
}

func (c *Config) normalizeConverter() {
	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaultConverterBinary
	}
	c.Converter.SourceLayout = strings.TrimSpace(c.Converter.SourceLayout)
	if c.Converter.SourceLayout == "" {
		c.Converter.SourceLayout = defaultSourceLayout
	}
	c.Converter.FilenameFormat = strings.TrimSpace(c.Converter.FilenameFormat)
	if c.Converter.FilenameFormat == "" {
		c.Converter.FilenameFormat = defaultFilenameFormat
	}
	if c.Converter.CompressionLevel == 0 {
		c.Converter.CompressionLevel = defaultCompressionLevel
	}
}

func (c *Config) normalizeClassifier() {
	markers := make([]string, 0, len(c.Classifier.AccelerationMarkers))
	seen := make(map[string]struct{}, len(c.Classifier.AccelerationMarkers))
	for _, marker := range c.Classifier.AccelerationMarkers {
		marker = strings.TrimSpace(marker)
		if marker == "" {
			continue
		}
		if _, exists := seen[marker]; exists {
			continue
		}
		seen[marker] = struct{}{}
		markers = append(markers, marker)
	}
	c.Classifier.AccelerationMarkers = markers
}

func (c *Config) normalizeHistory() error {
	path := strings.TrimSpace(c.History.Path)
	if path == "" {
		c.History.Path = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
