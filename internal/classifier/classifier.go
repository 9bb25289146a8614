package classifier

import (
	"fmt"
	"strings"
)

// Result is the outcome of classifying one filename.
type Result struct {
	Name      string
	Category  Category
	Rule      string
	Suffix    string
	Task      string
	Extension string
}

// Renamed reports whether the file receives a derived name. Misc files keep
// their original name.
func (r Result) Renamed() bool {
	return r.Category != CategoryMisc
}

// Filename composes the destination filename for a subject label and session.
func (r Result) Filename(subjectLabel, session string) string {
	if !r.Renamed() {
		return r.Name
	}
	return subjectLabel + "_" + session + "_" + r.Suffix + r.Extension
}

// Classifier applies an ordered rule set.
type Classifier struct {
	rules   []Rule
	markers []string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRules replaces the default rule set.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		if len(rules) > 0 {
			c.rules = append([]Rule(nil), rules...)
		}
	}
}

// WithAccelerationMarkers replaces the marker tokens stripped from task names.
func WithAccelerationMarkers(markers []string) Option {
	return func(c *Classifier) {
		c.markers = append([]string(nil), markers...)
	}
}

// New constructs a classifier using DefaultRules and DefaultAccelerationMarkers
// unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:   append([]Rule(nil), DefaultRules...),
		markers: append([]string(nil), DefaultAccelerationMarkers...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns a copy of the rule set in evaluation order.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify assigns name to the first matching rule. A name matching no rule is
// misc. Functional names whose task label cannot be derived return an error
// wrapping ErrMalformedTaskName.
func (c *Classifier) Classify(name string) (Result, error) {
	if strings.TrimSpace(name) == "" {
		return Result{}, fmt.Errorf("classify: empty filename")
	}
	for _, rule := range c.rules {
		if !rule.Matches(name) {
			continue
		}
		result := Result{
			Name:      name,
			Category:  rule.Category,
			Rule:      rule.Pattern,
			Suffix:    rule.Suffix,
			Extension: Extension(name),
		}
		if rule.Category == CategoryFunctional && rule.Suffix == "" {
			task, err := TaskName(name, c.markers)
			if err != nil {
				return Result{}, err
			}
			result.Task = task
			result.Suffix = "task-" + task + "_bold"
		}
		return result, nil
	}
	return Result{Name: name, Category: CategoryMisc, Extension: Extension(name)}, nil
}
