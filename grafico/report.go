package grafico

import (
	"fmt"
	"sort"
	"strings"
)

// Repair records one object that import had to drop or rebuild.
type Repair struct {
	// ID is the identifier of the object, when it could be recovered.
	ID string

	// Name is the display name of the object, when it could be recovered.
	Name string

	// Path is the file the object was read from.
	Path string

	// Reason explains what was wrong with the fragment.
	Reason string
}

// Label returns the most descriptive name available for the object.
func (r Repair) Label() string {
	switch {
	case r.Name != "" && r.ID != "":
		return fmt.Sprintf("%s (%s)", r.Name, r.ID)
	case r.Name != "":
		return r.Name
	case r.ID != "":
		return r.ID
	default:
		return r.Path
	}
}

// Report lists the objects that import removed or restored.
type Report struct {
	// Removed are objects dropped from the model because their fragment
	// was missing, unreadable or incomplete.
	Removed []Repair

	// Restored are objects rebuilt with default values because a
	// supporting fragment was missing.
	Restored []Repair
}

// Empty reports whether import needed no repairs.
func (r *Report) Empty() bool {
	return r == nil || (len(r.Removed) == 0 && len(r.Restored) == 0)
}

// Names returns the labels of all repaired objects in a stable order.
func (r *Report) Names() []string {
	if r.Empty() {
		return nil
	}
	var names []string
	for _, x := range r.Restored {
		names = append(names, x.Label())
	}
	for _, x := range r.Removed {
		names = append(names, x.Label())
	}
	sort.Strings(names)
	return names
}

// Summary renders the report as a commit message annotation. It returns an
// empty string when there is nothing to report.
func (r *Report) Summary() string {
	if r.Empty() {
		return ""
	}
	var b strings.Builder
	if len(r.Restored) > 0 {
		b.WriteString("Restored objects:\n")
		for _, x := range sorted(r.Restored) {
			fmt.Fprintf(&b, "- %s: %s\n", x.Label(), x.Reason)
		}
	}
	if len(r.Removed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Removed objects:\n")
		for _, x := range sorted(r.Removed) {
			fmt.Fprintf(&b, "- %s: %s\n", x.Label(), x.Reason)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Report) remove(x Repair) {
	r.Removed = append(r.Removed, x)
}

func (r *Report) restore(x Repair) {
	r.Restored = append(r.Restored, x)
}

func sorted(xs []Repair) []Repair {
	out := append([]Repair(nil), xs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
