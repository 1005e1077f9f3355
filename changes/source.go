package changes

import (
	"regexp"
	"strings"
)

// Kind classifies where a change set should be read from.
type Kind int

const (
	KindFile Kind = iota
	KindCommit
	KindStaged
	KindRange
)

func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindStaged:
		return "staged"
	case KindRange:
		return "range"
	default:
		return "file"
	}
}

// CommitPrefix marks an explicit commit reference, as in "commit:main~2".
const CommitPrefix = "commit:"

var (
	headRef   = regexp.MustCompile(`^HEAD([~^][0-9]*)*$`)
	shortHash = regexp.MustCompile(`^[0-9a-fA-F]{7}$`)
	fullHash  = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
)

// ParseSource classifies source and returns the reference to read:
//
//	commit:<ref>   explicit commit reference
//	staged         the index relative to HEAD
//	<a>..<b>       a commit range
//	HEAD, HEAD~N   relative commit
//	7 or 40 hex    abbreviated or full commit hash
//
// Anything else is a path to a file holding diff text.
func ParseSource(source string) (Kind, string) {
	switch {
	case strings.HasPrefix(source, CommitPrefix):
		return KindCommit, strings.TrimPrefix(source, CommitPrefix)
	case source == "staged":
		return KindStaged, ""
	case strings.Contains(source, ".."):
		return KindRange, source
	case headRef.MatchString(source), shortHash.MatchString(source), fullHash.MatchString(source):
		return KindCommit, source
	default:
		return KindFile, source
	}
}
