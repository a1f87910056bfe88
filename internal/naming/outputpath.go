package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultMaxIncrement bounds the _NNN probe before falling back to a timestamp.
const defaultMaxIncrement = 999

// PathResolver turns a rendered filename into one absolute output path.
type PathResolver struct {
	claims       *claimTable
	exists       func(path string) bool
	now          func() time.Time
	maxIncrement int
}

// NewPathResolver returns a resolver that checks the real filesystem.
func NewPathResolver() *PathResolver {
	return &PathResolver{
		claims:       newClaimTable(),
		exists:       fileExists,
		now:          time.Now,
		maxIncrement: defaultMaxIncrement,
	}
}

// Resolve computes the output path for one task. owner identifies the task
// for in-run claims; ext is the extension without the dot.
//
//	<base>[/<last N source dirs>]/<prefix><filename><suffix>.<ext>
//
// base is rules.OutputDir, or the source file's directory when that is
// empty. The overwrite policy is applied last.
func (r *PathResolver) Resolve(owner, sourcePath, filename, ext string, rules Rules) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", ErrEmptyFilename
	}
	base := rules.OutputDir
	if base == "" {
		base = filepath.Dir(sourcePath)
	} else if rules.PreserveDirLevels > 0 {
		base = filepath.Join(base, tailSegments(filepath.Dir(sourcePath), rules.PreserveDirLevels))
	}

	name := rules.Prefix + filename + rules.Suffix
	ext = strings.TrimPrefix(ext, ".")
	if ext != "" {
		name += "." + ext
	}
	path, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}

	policy := rules.Policy
	if policy == "" {
		policy = PolicyNever
	}
	switch policy {
	case PolicyAlways:
		if !r.claims.claim(owner, path) {
			return "", &CollisionError{Path: path, Policy: policy}
		}
		return path, nil
	case PolicyNever, PolicyAsk:
		if r.taken(owner, path) || !r.claims.claim(owner, path) {
			return "", &CollisionError{Path: path, Policy: policy}
		}
		return path, nil
	case PolicyIncrement:
		return r.increment(owner, path)
	default:
		return "", fmt.Errorf("invalid overwrite policy %q", policy)
	}
}

// increment probes stem_001, stem_002, ... and returns the first free path.
// Past maxIncrement it falls back to a timestamp suffix.
func (r *PathResolver) increment(owner, path string) (string, error) {
	if !r.taken(owner, path) && r.claims.claim(owner, path) {
		return path, nil
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; i <= r.maxIncrement; i++ {
		candidate := fmt.Sprintf("%s_%03d%s", stem, i, ext)
		if !r.taken(owner, candidate) && r.claims.claim(owner, candidate) {
			return candidate, nil
		}
	}
	candidate := fmt.Sprintf("%s_%s%s", stem, r.now().Format("20060102-150405.000"), ext)
	if r.taken(owner, candidate) || !r.claims.claim(owner, candidate) {
		return "", &CollisionError{Path: candidate, Policy: PolicyIncrement}
	}
	return candidate, nil
}

// Claim reserves an already-resolved path for owner, as when a task that
// kept its output path is requeued. Only in-run claims are checked; the
// file may exist from an earlier attempt.
func (r *PathResolver) Claim(owner, path string) error {
	if !r.claims.claim(owner, path) {
		return &CollisionError{Path: path, Policy: PolicyNever}
	}
	return nil
}

// Release frees the paths claimed by owner. Call it when a task ends
// without producing its output, so a later task may use the path.
func (r *PathResolver) Release(owner string) {
	r.claims.release(owner)
}

func (r *PathResolver) taken(owner, path string) bool {
	return r.exists(path) || r.claims.takenByOther(owner, path)
}

// tailSegments returns the last n components of dir, joined.
func tailSegments(dir string, n int) string {
	dir = filepath.Clean(dir)
	dir = strings.TrimPrefix(dir, filepath.VolumeName(dir))
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(dir), "/") {
		if p != "" && p != "." && p != ".." {
			parts = append(parts, p)
		}
	}
	if len(parts) > n {
		parts = parts[len(parts)-n:]
	}
	return filepath.Join(parts...)
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
