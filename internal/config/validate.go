package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. A missing subject or empty
// session list is allowed here so commands like classify and status work
// without a full run configuration; see ValidateRun.
func (c *Config) Validate() error {
	if err := c.validateSubject(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	if err := c.validateConverter(); err != nil {
		return err
	}
	return nil
}

// ValidateRun checks the fields a conversion run needs on top of Validate.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Subject.ID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("subject.id is required. Set BIDSIFY_SUBJECT, pass --subject, or edit %s (create with 'bidsify config init')", defaultPath)
	}
	if len(c.Sessions) == 0 {
		return errors.New("at least one [[sessions]] entry (or --session id=dir) is required")
	}
	for _, s := range c.Sessions {
		if s.SourceDir == "" {
			return fmt.Errorf("sessions %q: set source_dir or paths.dicom_root", s.ID)
		}
	}
	return nil
}

func (c *Config) validateSubject() error {
	if c.Subject.ID == "" {
		return nil
	}
	if !isLabel(c.Subject.ID) {
		return fmt.Errorf("subject.id %q must contain only letters and digits", c.Subject.ID)
	}
	return nil
}

func (c *Config) validateSessions() error {
	seen := make(map[string]struct{}, len(c.Sessions))
	for i, s := range c.Sessions {
		if err := ValidateSessionID(s.ID); err != nil {
			return fmt.Errorf("sessions[%d].id: %w", i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sessions[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// ValidateSessionID reports whether id can name a session directory under
// sub-<subject>/.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session id must be set")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("session id %q must be a single path element", id)
	}
	return nil
}

func (c *Config) validateConverter() error {
	if c.Converter.CompressionLevel < 1 || c.Converter.CompressionLevel > 9 {
		return errors.New("converter.compression_level must be between 1 and 9")
	}
	if c.Converter.TimeoutSeconds < 0 {
		return errors.New("converter.timeout_seconds must be >= 0")
	}
	if c.Paths.DicomRoot != "" && !strings.Contains(c.Converter.SourceLayout, "{session}") {
		return errors.New("converter.source_layout must contain {session}")
	}
	return nil
}

func isLabel(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
