package classifier

import "strings"

// Rule is a single classification entry. Pattern is matched as a
// case-sensitive substring of the filename.
type Rule struct {
	Pattern  string
	Category Category
	// Suffix is the fixed BIDS suffix for the rule. Functional rules leave it
	// empty and derive the suffix from the task name.
	Suffix string
}

// Matches reports whether the rule applies to name.
func (r Rule) Matches(name string) bool {
	return r.Pattern != "" && strings.Contains(name, r.Pattern)
}

// DefaultRules is the ordered rule set. Order matters: the rules overlap and
// the first match wins.
var DefaultRules = []Rule{
	{Pattern: "diff", Category: CategoryDiffusion, Suffix: "dwi"},
	{Pattern: "MPRAGE", Category: CategoryAnatomical, Suffix: "acq-mprage_T1w"},
	{Pattern: "t1_flash", Category: CategoryAnatomical, Suffix: "acq-flash_T1w"},
	{Pattern: "t1_fl2d", Category: CategoryAnatomical, Suffix: "acq-fl2d1_T1w"},
	{Pattern: "GRE_3D_Sag_Spoiled", Category: CategoryAnatomical, Suffix: "acq-gre_spoiled_T1w"},
	{Pattern: boldMarker, Category: CategoryFunctional},
}

// DefaultAccelerationMarkers are removed from functional task names.
var DefaultAccelerationMarkers = []string{"(MB4iPAT2)"}
