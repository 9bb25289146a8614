package classifier

// Category is the BIDS modality a scan file belongs to.
type Category string

const (
	CategoryDiffusion  Category = "diffusion"
	CategoryAnatomical Category = "anatomical"
	CategoryFunctional Category = "functional"
	CategoryMisc       Category = "misc"
)

// Categories lists every category in rule priority order, misc last.
var Categories = []Category{CategoryDiffusion, CategoryAnatomical, CategoryFunctional, CategoryMisc}

// Dir returns the session subdirectory holding files of this category.
func (c Category) Dir() string {
	switch c {
	case CategoryDiffusion:
		return "dwi"
	case CategoryAnatomical:
		return "anat"
	case CategoryFunctional:
		return "func"
	default:
		return "misc"
	}
}

// Dirs returns the fixed set of session subdirectories.
func Dirs() []string {
	dirs := make([]string, 0, len(Categories))
	for _, c := range Categories {
		dirs = append(dirs, c.Dir())
	}
	return dirs
}
