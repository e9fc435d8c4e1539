package grafico

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/model"
)

// Serializer exports and imports a model inside one working copy.
type Serializer struct {
	fs     billy.Filesystem
	root   string
	logger *slog.Logger
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithRoot sets the folder inside the working copy that holds the export.
// Defaults to DefaultRoot.
func WithRoot(root string) Option {
	return func(s *Serializer) {
		if root != "" {
			s.root = path.Clean(root)
		}
	}
}

// WithLogger configures the serializer with a logger.
// If logger is nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Serializer) {
		s.logger = logger
	}
}

// New creates a Serializer operating on the working copy filesystem fsys.
func New(fsys billy.Filesystem, opts ...Option) *Serializer {
	s := &Serializer{
		fs:   fsys,
		root: DefaultRoot,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Root returns the export folder relative to the working copy root.
func (s *Serializer) Root() string {
	return s.root
}

// Current reads the exported file set currently on disk.
func (s *Serializer) Current() (FileSet, error) {
	set, err := ReadFileSet(s.fs, s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "grafico.Current", "reading exported files")
	}
	return set, nil
}

// Export writes m into the working copy and returns the resulting file set.
//
// The whole file set is rendered in memory first, so validation failures
// such as dangling references never touch the disk. Unchanged files are not
// rewritten and stale files are removed. If a write fails, or ctx is
// cancelled, every path touched so far is restored to its previous content.
func (s *Serializer) Export(ctx context.Context, m *model.Model) (FileSet, error) {
	const op = "grafico.Export"

	next, err := Render(m, s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, op, "rendering model")
	}

	prev, err := ReadFileSet(s.fs, s.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, op, "reading previous export")
	}

	var writes, removes []string
	for _, p := range next.Paths() {
		if old, ok := prev[p]; !ok || !bytes.Equal(old, next[p]) {
			writes = append(writes, p)
		}
	}
	for _, p := range prev.Paths() {
		if _, ok := next[p]; !ok {
			removes = append(removes, p)
		}
	}

	if len(writes) == 0 && len(removes) == 0 {
		s.logger.DebugContext(ctx, "export unchanged", "files", len(next))
		return next, nil
	}

	var touched []string
	fail := func(cause error, code errors.ErrorCode, msg string) (FileSet, error) {
		s.rollback(ctx, prev, touched)
		return nil, errors.Wrap(cause, code, op, msg)
	}

	for _, p := range writes {
		if err := ctx.Err(); err != nil {
			return fail(err, errors.CodeCancelled, "export cancelled")
		}
		touched = append(touched, p)
		if err := s.write(p, next[p]); err != nil {
			return fail(err, errors.CodeSerialization, "writing "+p)
		}
	}
	for _, p := range removes {
		if err := ctx.Err(); err != nil {
			return fail(err, errors.CodeCancelled, "export cancelled")
		}
		touched = append(touched, p)
		if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			return fail(err, errors.CodeSerialization, "removing "+p)
		}
	}
	s.pruneDirs(removes)

	s.logger.InfoContext(ctx, "model exported",
		"files", len(next),
		"written", len(writes),
		"removed", len(removes),
	)
	return next, nil
}

func (s *Serializer) write(p string, data []byte) error {
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	return util.WriteFile(s.fs, p, data, 0o644)
}

// rollback restores every touched path to its state in prev.
func (s *Serializer) rollback(ctx context.Context, prev FileSet, touched []string) {
	var created []string
	for _, p := range touched {
		if old, ok := prev[p]; ok {
			if err := s.write(p, old); err != nil {
				s.logger.ErrorContext(ctx, "rollback failed", "path", p, "error", err)
			}
			continue
		}
		if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.ErrorContext(ctx, "rollback failed", "path", p, "error", err)
		}
		created = append(created, p)
	}
	s.pruneDirs(created)
	s.logger.WarnContext(ctx, "export rolled back", "paths", len(touched))
}

// pruneDirs removes directories left empty after files were deleted.
// Empty directories would otherwise be read back as folders on import.
func (s *Serializer) pruneDirs(removed []string) {
	dirs := map[string]bool{}
	for _, p := range removed {
		for d := path.Dir(p); d != "." && d != "/" && d != s.root && strings.HasPrefix(d, s.root+"/"); d = path.Dir(d) {
			dirs[d] = true
		}
	}
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	// deepest first
	sort.Slice(ordered, func(i, j int) bool {
		return strings.Count(ordered[i], "/") > strings.Count(ordered[j], "/")
	})
	for _, d := range ordered {
		entries, err := s.fs.ReadDir(d)
		if err != nil || len(entries) > 0 {
			continue
		}
		_ = s.fs.Remove(d)
	}
}
