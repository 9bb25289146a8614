package classifier_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bidsify/internal/classifier"
)

func TestClassifyRuleTable(t *testing.T) {
	c := classifier.New()
	tests := []struct {
		name     string
		file     string
		category classifier.Category
		want     string
	}{
		{"diffusion", "a_diff.nii.gz", classifier.CategoryDiffusion, "sub-007_ses-2_dwi.nii.gz"},
		{"mprage", "b_MPRAGE.nii", classifier.CategoryAnatomical, "sub-007_ses-2_acq-mprage_T1w.nii"},
		{"flash", "007_t1_flash_3d.nii.gz", classifier.CategoryAnatomical, "sub-007_ses-2_acq-flash_T1w.nii.gz"},
		{"fl2d", "007_t1_fl2d_tra.nii.gz", classifier.CategoryAnatomical, "sub-007_ses-2_acq-fl2d1_T1w.nii.gz"},
		{"spoiled", "007_GRE_3D_Sag_Spoiled.nii.gz", classifier.CategoryAnatomical, "sub-007_ses-2_acq-gre_spoiled_T1w.nii.gz"},
		{"bold", "c_bold_rest.nii.gz", classifier.CategoryFunctional, "sub-007_ses-2_task-rest_bold.nii.gz"},
		{"sidecar", "b_MPRAGE.json", classifier.CategoryAnatomical, "sub-007_ses-2_acq-mprage_T1w.json"},
		{"misc", "d_unknown.nii", classifier.CategoryMisc, "d_unknown.nii"},
		{"case sensitive", "e_mprage.nii.gz", classifier.CategoryMisc, "e_mprage.nii.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.file)
			if err != nil {
				t.Fatalf("Classify(%q) returned error: %v", tt.file, err)
			}
			if res.Category != tt.category {
				t.Fatalf("Classify(%q) category = %s, want %s", tt.file, res.Category, tt.category)
			}
			if got := res.Filename("sub-007", "ses-2"); got != tt.want {
				t.Fatalf("Filename = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyDiffusionTakesPrecedence(t *testing.T) {
	c := classifier.New()
	for _, name := range []string{
		"scan_diff_bold_rest.nii.gz",
		"bold_rest_diff.nii.gz",
		"MPRAGE_diff.nii",
		"t1_flash_diffusion.nii.gz",
	} {
		res, err := c.Classify(name)
		if err != nil {
			t.Fatalf("Classify(%q) returned error: %v", name, err)
		}
		if res.Category != classifier.CategoryDiffusion {
			t.Fatalf("Classify(%q) = %s, want diffusion", name, res.Category)
		}
	}
}

func TestClassifyAnatomicalBeforeFunctional(t *testing.T) {
	res, err := classifier.New().Classify("MPRAGE_bold.nii.gz")
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if res.Suffix != "acq-mprage_T1w" {
		t.Fatalf("expected MPRAGE rule to win, got %+v", res)
	}
}

func TestClassifyMiscKeepsOriginalName(t *testing.T) {
	c := classifier.New()
	for _, name := range []string{"d_unknown.nii", "localizer_32ch.nii.gz", "README", "scout.json"} {
		res, err := c.Classify(name)
		if err != nil {
			t.Fatalf("Classify(%q) returned error: %v", name, err)
		}
		if res.Category != classifier.CategoryMisc {
			t.Fatalf("Classify(%q) = %s, want misc", name, res.Category)
		}
		if res.Renamed() {
			t.Fatalf("expected misc result to keep its name")
		}
		if got := res.Filename("sub-001", "ses-1"); got != name {
			t.Fatalf("Filename = %q, want %q", got, name)
		}
	}
}

func TestClassifyMalformedTaskName(t *testing.T) {
	c := classifier.New()
	for _, name := range []string{
		"scan_bold",
		"scan_bold.nii.gz",
		"scan_bold___.nii.gz",
		"scan_bold_(MB4iPAT2).nii.gz",
		"scan_bold_rest-run1.nii.gz",
	} {
		_, err := c.Classify(name)
		if err == nil {
			t.Fatalf("Classify(%q) expected error", name)
		}
		if !errors.Is(err, classifier.ErrMalformedTaskName) {
			t.Fatalf("Classify(%q) error = %v, want ErrMalformedTaskName", name, err)
		}
	}
}

func TestTaskNameRejectsNonBIDSLabel(t *testing.T) {
	tests := []struct {
		file  string
		label string
	}{
		{"scan_bold_rest-run1.nii.gz", `"rest-run1"`},
		{"scan_bold_rest(MB6).nii.gz", `"rest(MB6)"`},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := classifier.TaskName(tt.file, classifier.DefaultAccelerationMarkers)
			if !errors.Is(err, classifier.ErrMalformedTaskName) {
				t.Fatalf("TaskName(%q) error = %v, want ErrMalformedTaskName", tt.file, err)
			}
			for _, want := range []string{tt.label, "only letters and digits", "classifier.acceleration_markers"} {
				if !strings.Contains(err.Error(), want) {
					t.Fatalf("error %q does not mention %s", err, want)
				}
			}
		})
	}
}

func TestClassifyEmptyName(t *testing.T) {
	if _, err := classifier.New().Classify("  "); err == nil {
		t.Fatal("expected error for empty filename")
	}
}

func TestTaskName(t *testing.T) {
	tests := []struct {
		file    string
		markers []string
		want    string
	}{
		{"scan_bold_task1(MB4iPAT2).nii.gz", classifier.DefaultAccelerationMarkers, "task1"},
		{"scan_bold_restingstate.nii.gz", classifier.DefaultAccelerationMarkers, "restingstate"},
		{"scan_bold_(MB4iPAT2)_faces.nii.gz", classifier.DefaultAccelerationMarkers, "faces"},
		{"scan_bold_nback_(MB6).nii", []string{"(MB6)"}, "nback"},
		{"scan_bold_nback_(MB6)(iPAT2).nii", []string{"(MB6)", "(iPAT2)"}, "nback"},
		{"scan_bold_re_st.json", nil, "rest"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := classifier.TaskName(tt.file, tt.markers)
			if err != nil {
				t.Fatalf("TaskName(%q) returned error: %v", tt.file, err)
			}
			if got != tt.want {
				t.Fatalf("TaskName(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestConfiguredMarkersReplaceDefaults(t *testing.T) {
	c := classifier.New(classifier.WithAccelerationMarkers([]string{"(MB8)"}))
	res, err := c.Classify("x_bold_rest(MB8).nii.gz")
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	if res.Task != "rest" {
		t.Fatalf("task = %q, want rest", res.Task)
	}
	if _, err := c.Classify("x_bold_rest(MB4iPAT2).nii.gz"); !errors.Is(err, classifier.ErrMalformedTaskName) {
		t.Fatalf("expected default marker to be left in place and rejected, got %v", err)
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"x.nii.gz":         ".nii.gz",
		"x.nii":            ".nii",
		"x.json":           ".json",
		"archive.tar.gz":   ".tar.gz",
		"x.gz":             ".gz",
		"noext":            "",
		"a.b.c_MPRAGE.nii": ".nii",
	}
	for name, want := range tests {
		if got := classifier.Extension(name); got != want {
			t.Errorf("Extension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestCompoundExtensionPreserved(t *testing.T) {
	res := classifier.Result{
		Name:      "x.nii.gz",
		Category:  classifier.CategoryAnatomical,
		Suffix:    "acq-mprage_T1w",
		Extension: classifier.Extension("x.nii.gz"),
	}
	got := res.Filename(classifier.SubjectLabel("001"), "ses-1")
	if got != "sub-001_ses-1_acq-mprage_T1w.nii.gz" {
		t.Fatalf("Filename = %q", got)
	}
}

func TestSubjectLabel(t *testing.T) {
	if got := classifier.SubjectLabel("007"); got != "sub-007" {
		t.Fatalf("SubjectLabel = %q", got)
	}
	if got := classifier.SubjectLabel("sub-007"); got != "sub-007" {
		t.Fatalf("SubjectLabel should not double prefix, got %q", got)
	}
}

func TestDefaultRuleOrder(t *testing.T) {
	var patterns []string
	for _, rule := range classifier.New().Rules() {
		patterns = append(patterns, rule.Pattern)
	}
	want := []string{"diff", "MPRAGE", "t1_flash", "t1_fl2d", "GRE_3D_Sag_Spoiled", "bold"}
	if diff := cmp.Diff(want, patterns); diff != "" {
		t.Fatalf("rule order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"dwi", "anat", "func", "misc"}, classifier.Dirs()); diff != "" {
		t.Fatalf("dirs mismatch (-want +got):\n%s", diff)
	}
}
