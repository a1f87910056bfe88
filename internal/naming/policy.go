package naming

import (
	"errors"
	"fmt"
	"strings"
)

// OverwritePolicy governs what happens when a resolved output path exists.
type OverwritePolicy string

const (
	PolicyNever     OverwritePolicy = "never"     // Fail with a collision error (default).
	PolicyAsk       OverwritePolicy = "ask"       // Same as never; confirmation happens above the resolver.
	PolicyIncrement OverwritePolicy = "increment" // Append _001, _002, ... until free.
	PolicyAlways    OverwritePolicy = "always"    // Return the path unchanged.
)

// Sentinel errors for path resolution.
var (
	ErrCollision     = errors.New("output path already exists")
	ErrEmptyFilename = errors.New("naming template produced an empty filename")
)

// CollisionError reports the path that collided and the policy in force.
type CollisionError struct {
	Path   string
	Policy OverwritePolicy
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("output path already exists: %s (overwrite policy %q; choose another output directory or use --overwrite increment)", e.Path, e.Policy)
}

func (e *CollisionError) Unwrap() error { return ErrCollision }

// ParsePolicy converts user input into an OverwritePolicy.
func ParsePolicy(s string) (OverwritePolicy, error) {
	switch p := OverwritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyNever, PolicyAsk, PolicyIncrement, PolicyAlways:
		return p, nil
	default:
		return "", fmt.Errorf("invalid overwrite policy %q (use 'never', 'ask', 'increment' or 'always')", s)
	}
}

// Rules are the per-job naming and directory settings.
type Rules struct {
	Template          string          `json:"template"`
	Prefix            string          `json:"prefix,omitempty"`
	Suffix            string          `json:"suffix,omitempty"`
	OutputDir         string          `json:"output_dir,omitempty"` // Empty means the source file's directory.
	PreserveDirLevels int             `json:"preserve_dir_levels,omitempty"`
	Policy            OverwritePolicy `json:"overwrite_policy"`
}
