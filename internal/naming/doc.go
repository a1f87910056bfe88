// Package naming resolves task output paths in two phases.
//
// Phase 1, [RenderFilename], substitutes template tokens such as
// {source_name} or {timecode} against clip metadata. Unknown tokens are
// left literally so a broken template is visibly wrong.
//
// Phase 2, [PathResolver.Resolve], picks the base directory, applies
// prefix, suffix and extension, and enforces the [OverwritePolicy]. Paths
// claimed earlier in the same run by another task count as taken.
package naming
