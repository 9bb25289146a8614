package config

import "strings"

// Overrides carries command-line values that replace configured ones.
type Overrides struct {
	Subject   string
	OutputDir string
	// Sessions, when non-empty, replaces the configured session list.
	Sessions        []Session
	ContinueOnError *bool
}

// Apply copies non-empty overrides into the config, then normalizes and
// validates the result.
func (c *Config) Apply(o Overrides) error {
	if subject := strings.TrimSpace(o.Subject); subject != "" {
		c.Subject.ID = subject
	}
	if dir := strings.TrimSpace(o.OutputDir); dir != "" {
		c.Paths.OutputDir = dir
	}
	if len(o.Sessions) > 0 {
		c.Sessions = append([]Session(nil), o.Sessions...)
	}
	if o.ContinueOnError != nil {
		c.Workflow.ContinueOnError = *o.ContinueOnError
	}
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}
