package conflict

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of unchanged lines shown around each change.
const DiffContext = 3

// Diff returns a unified diff from the local to the remote version of path.
// A side where the file does not exist diffs as empty.
func (h *Handler) Diff(path string) (string, error) {
	f, ok := h.set.File(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFile, path)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(f.Ours)),
		B:        difflib.SplitLines(string(f.Theirs)),
		FromFile: label("ours", path, f.InOurs),
		ToFile:   label("theirs", path, f.InTheirs),
		Context:  DiffContext,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diffing %s: %w", path, err)
	}
	return out, nil
}

func label(side, path string, exists bool) string {
	if !exists {
		return "/dev/null"
	}
	return side + "/" + path
}
