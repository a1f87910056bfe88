package ffmpeg

import "regexp"

// Pre-compiled regexes for classifying ffmpeg stderr. Warning patterns are
// matched per line while the process runs; hint patterns are matched
// against the tail after a nonzero exit.
var (
	reMuxQueueOverflow = regexp.MustCompile(
		`Too many packets buffered for output stream`)

	reTimestampIssue = regexp.MustCompile(
		`(?i)Non-monotonous DTS|non monotonically increasing dts|` +
			`DTS .*out of order|PTS .*out of order|` +
			`pts has no value|missing PTS|Timestamps are unset`)

	reDeprecatedPixFmt = regexp.MustCompile(
		`(?i)deprecated pixel format used`)

	reUnknownEncoder = regexp.MustCompile(
		`(?i)Unknown encoder|Encoder not found|Unrecognized option`)

	rePermissionDenied = regexp.MustCompile(
		`(?i)Permission denied`)

	reInvalidInput = regexp.MustCompile(
		`(?i)Invalid data found when processing input|moov atom not found|` +
			`could not find codec parameters`)

	reNoSuchFile = regexp.MustCompile(
		`(?i)No such file or directory`)

	reNoSpace = regexp.MustCompile(
		`(?i)No space left on device`)
)

type classifier struct {
	re  *regexp.Regexp
	msg string
}

var warningClassifiers = []classifier{
	{reTimestampIssue, "timestamp discontinuity in source; output timing may drift"},
	{reMuxQueueOverflow, "mux queue overflow; output may be missing packets"},
	{reDeprecatedPixFmt, "deprecated pixel format in source; check color range of output"},
}

var hintClassifiers = []classifier{
	{reUnknownEncoder, "the encoder for this preset is not available in this ffmpeg build"},
	{rePermissionDenied, "permission denied reading the source or writing the output"},
	{reInvalidInput, "the source is unreadable or not a supported media file"},
	{reNoSuchFile, "the source or output directory does not exist"},
	{reNoSpace, "the output volume is full"},
}

// ClassifyWarning returns a warning message for line, or "" when the line
// is not a known warning pattern.
func ClassifyWarning(line string) string {
	for _, c := range warningClassifiers {
		if c.re.MatchString(line) {
			return c.msg
		}
	}
	return ""
}

// FailureHint scans lines from the end and returns an actionable hint for
// the first recognized failure pattern, or "".
func FailureHint(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		for _, c := range hintClassifiers {
			if c.re.MatchString(lines[i]) {
				return c.msg
			}
		}
	}
	return ""
}
