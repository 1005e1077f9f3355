package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/bpowers/ktme/changes"
	"github.com/bpowers/ktme/detect"
	"github.com/bpowers/ktme/schema"
)

func (s *Set) detector() (*detect.Detector, error) {
	return detect.New(s.deps.WorkDir,
		detect.WithModel(s.deps.Generator.Model()),
		detect.WithLogger(s.logger))
}

func (s *Set) detectServiceNameTool() *typedTool[noArgs] {
	return newTool("detect_service_name",
		"Detect service name from current directory with AI fallback",
		schema.NewObject(),
		func(ctx context.Context, _ noArgs) (string, error) {
			s.logger.Info("detect_service_name")

			d, err := s.detector()
			if err != nil {
				return "", err
			}
			name, _, err := d.DetectWithFallback(ctx)
			if err != nil {
				return "", err
			}
			info := d.Repository()

			var sb strings.Builder
			fmt.Fprintf(&sb, "**Detected Service Name:** %s\n\n", name)
			if info.IsGit {
				fmt.Fprintf(&sb, "**Git Repository Root:** %s\n", info.Root)
			}
			fmt.Fprintf(&sb, "**Current Directory:** %s\n", info.CurrentDir)
			return sb.String(), nil
		})
}

func (s *Set) repositoryInfoTool() *typedTool[noArgs] {
	return newTool("get_repository_info",
		"Get information about the current Git repository and directory",
		schema.NewObject(),
		func(ctx context.Context, _ noArgs) (string, error) {
			s.logger.Info("get_repository_info")

			d, err := s.detector()
			if err != nil {
				return "", err
			}
			info := d.Repository()

			var sb strings.Builder
			sb.WriteString("**Repository Information:**\n\n")
			fmt.Fprintf(&sb, "**Current Directory:** %s\n", info.CurrentDir)
			if !info.IsGit {
				sb.WriteString("**Git Repository:** No\n")
				return sb.String(), nil
			}

			sb.WriteString("**Git Repository:** Yes\n")
			fmt.Fprintf(&sb, "**Repository Root:** %s\n", info.Root)
			if info.Branch != "" {
				fmt.Fprintf(&sb, "**Current Branch:** %s\n", info.Branch)
			}
			if r, err := changes.Open(s.deps.WorkDir); err == nil {
				if st, err := r.Info(); err == nil {
					fmt.Fprintf(&sb, "**Changed Files:** %d\n", len(st.Status))
				}
			}
			return sb.String(), nil
		})
}
