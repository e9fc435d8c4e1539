// Package checksum tracks a digest of the exported model file set so a run
// can tell whether the export changed since the last synchronization.
//
// The digest is stored in the repository metadata directory and is never
// committed.
package checksum

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/crypto/blake2b"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/grafico"
)

// DefaultPath is the location of the record relative to the repository
// metadata directory.
const DefaultPath = "modelsync/checksum"

// Digest is a hex encoded BLAKE2b-256 digest of an exported file set.
type Digest string

// Compute returns the digest of set. Paths are hashed in sorted order and
// every path and content is length prefixed, so two sets share a digest only
// if they hold the same paths with the same bytes.
func Compute(set grafico.FileSet) Digest {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for oversized keys
		panic(fmt.Sprintf("checksum: %v", err))
	}

	var n [8]byte
	for _, p := range set.Paths() {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))

		data := set[p]
		binary.BigEndian.PutUint64(n[:], uint64(len(data)))
		h.Write(n[:])
		h.Write(data)
	}
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// Short returns the first 12 characters of the digest for display.
func (d Digest) Short() string {
	if len(d) > 12 {
		return string(d[:12])
	}
	return string(d)
}

// Tracker persists the digest of the last synchronized export.
type Tracker struct {
	fs   billy.Filesystem
	path string
}

// NewTracker returns a tracker storing its record in fsys, which is expected
// to be the repository metadata directory (".git").
func NewTracker(fsys billy.Filesystem) *Tracker {
	return &Tracker{fs: fsys, path: DefaultPath}
}

// Path returns the record location inside the metadata filesystem.
func (t *Tracker) Path() string {
	return t.path
}

// Save stores d as the current record.
func (t *Tracker) Save(d Digest) error {
	if !valid(d) {
		return fmt.Errorf("invalid digest %q", d)
	}
	if err := t.fs.MkdirAll(path.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("creating checksum directory: %w", err)
	}
	if err := util.WriteFile(t.fs, t.path, []byte(string(d)+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing checksum: %w", err)
	}
	return nil
}

// Load returns the stored record. A missing or corrupt record reports
// ok == false without an error.
func (t *Tracker) Load() (d Digest, ok bool, err error) {
	data, err := util.ReadFile(t.fs, t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading checksum: %w", err)
	}
	d = Digest(bytes.TrimSpace(data))
	if !valid(d) {
		return "", false, nil
	}
	return d, true, nil
}

// Changed reports whether d differs from the stored record. An absent
// record always counts as changed.
func (t *Tracker) Changed(d Digest) (bool, error) {
	stored, ok, err := t.Load()
	if err != nil {
		return true, err
	}
	return !ok || stored != d, nil
}

// Clear removes the stored record.
func (t *Tracker) Clear() error {
	if err := t.fs.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checksum: %w", err)
	}
	return nil
}

func valid(d Digest) bool {
	if len(d) != blake2b.Size256*2 {
		return false
	}
	_, err := hex.DecodeString(string(d))
	return err == nil
}
