package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/schema"
)

type readChangesRequest struct {
	Source string `json:"source"`
}

const sourceDescription = "Source identifier (commit hash, 'staged', or file path)"

func (s *Set) readChangesTool() *typedTool[readChangesRequest] {
	return newTool("read_changes",
		"Read extracted code changes from Git",
		schema.NewObject(schema.StringProp("source", sourceDescription, true)),
		func(ctx context.Context, req readChangesRequest) (string, error) {
			s.logger.Info("read_changes", "source", req.Source)
			return s.readChanges(req.Source)
		})
}

// readChanges returns pretty JSON for git sources and the raw contents
// for diff files. An existing file wins over a git interpretation, so
// paths like "../x.diff" are not mistaken for ranges.
func (s *Set) readChanges(source string) (string, error) {
	kind, ref := changes.ParseSource(source)
	explicit := kind == changes.KindStaged || strings.HasPrefix(source, changes.CommitPrefix)
	if !explicit {
		data, err := os.ReadFile(s.path(source))
		if err == nil {
			return string(data), nil
		}
		if kind == changes.KindFile {
			return "", fmt.Errorf("read %s: %w", source, err)
		}
	}

	r, err := changes.Open(s.deps.WorkDir, s.deps.GitOptions...)
	if err != nil {
		return "", err
	}

	var v any
	switch kind {
	case changes.KindStaged:
		v, err = r.ReadStaged()
	case changes.KindRange:
		v, err = r.ReadRange(ref)
	default:
		v, err = r.ReadCommit(ref)
	}
	if err != nil {
		return "", err
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal changes: %w", err)
	}
	return string(out), nil
}

func (s *Set) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.deps.WorkDir, p)
}

var errInvalidChanges = errors.New("invalid changes format")

// parseChanges accepts a single change set or the array a range read
// produces.
func parseChanges(text string) (*changes.Extracted, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") {
		var sets []*changes.Extracted
		if err := json.Unmarshal([]byte(text), &sets); err != nil {
			return nil, errInvalidChanges
		}
		if len(sets) == 0 {
			return nil, errInvalidChanges
		}
		for _, s := range sets {
			if s == nil {
				return nil, errInvalidChanges
			}
		}
		id := sets[len(sets)-1].Identifier + ".." + sets[0].Identifier
		return changes.Combine(id, sets), nil
	}

	var ex changes.Extracted
	if err := json.Unmarshal([]byte(text), &ex); err != nil {
		return nil, errInvalidChanges
	}
	return &ex, nil
}
