// Package archive stores downloaded registry documents on disk. File presence
// is the durable record of a completed lot: a second run finds the file and
// skips the download.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/auction-docs/internal/model"
)

// ErrExists is returned by Write when the target file is already present.
var ErrExists = eris.New("archive: document already exists")

const tempPrefix = ".partial-"

// Archive lays documents out as {root}/{source}/{institution}_{lot_id}.{ext}.
type Archive struct {
	root   string
	source string
	ext    string
}

// New returns an Archive rooted at root. Empty source or ext fall back to
// "leilao_vip" and "pdf".
func New(root, source, ext string) *Archive {
	if source == "" {
		source = "leilao_vip"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "pdf"
	}
	return &Archive{root: root, source: Sanitize(source), ext: ext}
}

// Root returns the directory every source lives under.
func (a *Archive) Root() string { return a.root }

// Dir returns the directory documents of this source are written to.
func (a *Archive) Dir() string {
	return filepath.Join(a.root, a.source)
}

// Path returns the target path for a lot's document.
func (a *Archive) Path(institution, lotID string) string {
	name := fmt.Sprintf("%s_%s.%s", Sanitize(institution), Sanitize(lotID), a.ext)
	return filepath.Join(a.Dir(), name)
}

// Exists reports whether a regular file is present at path.
func (a *Archive) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Write stores data at path without ever replacing an existing file. The
// bytes land in a temporary file first and are linked into place, so a
// reader never observes a partial document. It returns ErrExists when
// another writer got there first.
func (a *Archive) Write(path string, data []byte) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "archive: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, eris.Wrap(err, "archive: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	n, err := tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		return 0, eris.Wrapf(err, "archive: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return 0, eris.Wrapf(err, "archive: close %s", path)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, ErrExists
		}
		// Some filesystems refuse hard links; fall back to a rename guarded
		// by a fresh existence check.
		if a.Exists(path) {
			return 0, ErrExists
		}
		if rerr := os.Rename(tmpName, path); rerr != nil {
			return 0, eris.Wrapf(rerr, "archive: move into place %s", path)
		}
		zap.L().Debug("archive: hard link unavailable, renamed instead",
			zap.String("path", path), zap.Error(err))
	}
	return int64(n), nil
}

// List walks the archive root and returns every stored document, sorted by
// source and name. A missing root yields an empty list.
func (a *Archive) List() ([]model.StoredFile, error) {
	files := []model.StoredFile{}
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == a.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}
		source := ""
		if dir := filepath.Dir(rel); dir != "." {
			source = filepath.ToSlash(dir)
		}
		files = append(files, model.StoredFile{
			Name:      d.Name(),
			Source:    source,
			Path:      path,
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "archive: list %s", a.root)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Source != files[j].Source {
			return files[i].Source < files[j].Source
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}

// Sanitize keeps [A-Za-z0-9._-] and replaces everything else with '_'.
// An empty result becomes "lot".
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "lot"
	}
	return out
}
