package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bpowers/ktme/schema"
)

type serviceRequest struct {
	Service string `json:"service"`
}

func (s *Set) getServiceMappingTool() *typedTool[serviceRequest] {
	return newTool("get_service_mapping",
		"Get documentation location for a service",
		schema.NewObject(schema.StringProp("service", "Service name", true)),
		func(ctx context.Context, req serviceRequest) (string, error) {
			s.logger.Info("get_service_mapping", "service", req.Service)

			mapping, err := s.deps.Store.GetMapping(req.Service)
			if err != nil {
				return "", err
			}
			out, err := json.MarshalIndent(mapping, "", "  ")
			if err != nil {
				return "", fmt.Errorf("marshal mapping: %w", err)
			}
			return string(out), nil
		})
}

func (s *Set) listServicesTool() *typedTool[noArgs] {
	return newTool("list_services",
		"List all mapped services",
		schema.NewObject(),
		func(ctx context.Context, _ noArgs) (string, error) {
			s.logger.Info("list_services")

			services, err := s.deps.Store.ListServices()
			if err != nil {
				return "", err
			}
			names := make([]string, 0, len(services))
			for _, svc := range services {
				names = append(names, svc.Name)
			}
			return "Services: " + strings.Join(names, ", "), nil
		})
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Set) searchServicesTool() *typedTool[queryRequest] {
	return newTool("search_services",
		"Search services by query with relevance scoring",
		schema.NewObject(schema.StringProp("query", "Search query string", true)),
		func(ctx context.Context, req queryRequest) (string, error) {
			s.logger.Info("search_services", "query", req.Query)

			results, err := s.deps.Store.SearchServices(req.Query)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No services found matching: %s", req.Query), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Search Results for '%s':\n\n", req.Query)
			for i, r := range results {
				fmt.Fprintf(&sb, "%d. **%s** (Relevance: %.1f)\n", i+1, r.Service.Name, r.Score)
				if r.Service.Description != "" {
					fmt.Fprintf(&sb, "   Description: %s\n", r.Service.Description)
				}
				if r.Service.Path != "" {
					fmt.Fprintf(&sb, "   Path: %s\n", r.Service.Path)
				}
				if len(r.Documents) > 0 {
					sb.WriteString("   Documentation:\n")
					for _, d := range r.Documents {
						fmt.Fprintf(&sb, "     - %s\n", d.Location)
					}
				}
				sb.WriteString("\n")
			}
			return sb.String(), nil
		})
}

type featureRequest struct {
	Feature string `json:"feature"`
}

func (s *Set) searchByFeatureTool() *typedTool[featureRequest] {
	return newTool("search_by_feature",
		"Search services by specific feature or functionality",
		schema.NewObject(schema.StringProp("feature", "Feature to search for", true)),
		func(ctx context.Context, req featureRequest) (string, error) {
			s.logger.Info("search_by_feature", "feature", req.Feature)

			results, err := s.deps.Store.SearchByFeature(req.Feature)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No services found with feature: %s", req.Feature), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Services with feature '%s':\n\n", req.Feature)
			for _, r := range results {
				fmt.Fprintf(&sb, "**%s**\n", r.Service.Name)
				if r.Service.Description != "" {
					fmt.Fprintf(&sb, "  %s\n", r.Service.Description)
				}
				if len(r.MatchedFeatures) > 0 {
					fmt.Fprintf(&sb, "  Features: %s\n", strings.Join(r.MatchedFeatures, ", "))
				}
				sb.WriteString("\n")
			}
			return sb.String(), nil
		})
}

type keywordRequest struct {
	Keyword string `json:"keyword"`
}

func (s *Set) searchByKeywordTool() *typedTool[keywordRequest] {
	return newTool("search_by_keyword",
		"Search services by keyword with flexible matching",
		schema.NewObject(schema.StringProp("keyword", "Keyword to search for", true)),
		func(ctx context.Context, req keywordRequest) (string, error) {
			s.logger.Info("search_by_keyword", "keyword", req.Keyword)

			results, err := s.deps.Store.SearchByKeyword(req.Keyword)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No services found matching keyword: %s", req.Keyword), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Keyword search results for '%s':\n\n", req.Keyword)
			for _, r := range results {
				fmt.Fprintf(&sb, "• **%s** (Score: %.1f)\n", r.Service.Name, r.Score)
				if r.Service.Path != "" {
					fmt.Fprintf(&sb, "  Path: %s\n", r.Service.Path)
				}
				fmt.Fprintf(&sb, "  Documents: %d\n\n", len(r.Documents))
			}
			return sb.String(), nil
		})
}
