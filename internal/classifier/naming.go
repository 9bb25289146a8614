package classifier

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	boldMarker        = "bold"
	compressionMarker = ".gz"
)

// ErrMalformedTaskName reports a functional filename whose task label cannot
// be derived. BIDS labels are letters and digits only, so a label left with
// a hyphen or an unconfigured acceleration marker is rejected: "rest-run1"
// from "scan_bold_rest-run1.nii.gz", or "rest(MB6)" when "(MB6)" is not in
// classifier.acceleration_markers.
var ErrMalformedTaskName = errors.New("malformed task name")

// Extension returns the extension kept on derived filenames. A trailing ".gz"
// keeps the compound extension (".nii.gz"); anything else keeps only the last
// token.
func Extension(name string) string {
	ext := filepath.Ext(name)
	if ext != compressionMarker {
		return ext
	}
	inner := filepath.Ext(strings.TrimSuffix(name, ext))
	return inner + ext
}

// TaskName derives the functional task label: the text after the first
// "bold", cut at the first ".", with each marker removed once and
// underscores stripped.
func TaskName(name string, markers []string) (string, error) {
	idx := strings.Index(name, boldMarker)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q does not contain %q", ErrMalformedTaskName, name, boldMarker)
	}
	rest := name[idx+len(boldMarker):]
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return "", fmt.Errorf("%w: %q has no extension after %q", ErrMalformedTaskName, name, boldMarker)
	}
	task := rest[:dot]
	for _, marker := range markers {
		if marker == "" {
			continue
		}
		task = strings.Replace(task, marker, "", 1)
	}
	task = strings.ReplaceAll(task, "_", "")
	if task == "" {
		return "", fmt.Errorf("%w: %q yields an empty task label", ErrMalformedTaskName, name)
	}
	if !isAlphanumeric(task) {
		return "", fmt.Errorf("%w: %q yields task label %q; labels may contain only letters and digits (add any acceleration marker to classifier.acceleration_markers)", ErrMalformedTaskName, name, task)
	}
	return task, nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// SubjectLabel returns the BIDS subject label for a bare identifier.
func SubjectLabel(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(subject, "sub-") {
		return subject
	}
	return "sub-" + subject
}

// SessionDir returns outputDir/<subject-label>/<session>.
func SessionDir(outputDir, subject, session string) string {
	return filepath.Join(outputDir, SubjectLabel(subject), session)
}
