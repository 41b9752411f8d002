package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docvector/docvector/internal/backend"
	"github.com/docvector/docvector/internal/pipeline"
)

func newSearchCmd() *cobra.Command {
	var mode string
	var filters []string
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the configured backend",
		Long: `Search indexed documents.

Modes: keyword, vector, hybrid, semantic. The local backend routes every
mode to vector search.

Filters restrict results by metadata field, repeatable and AND-combined:
  --filter category=runbook          equality
  --filter context=api|cli           any of the listed values
  --filter chunk_index>=2            comparison (local backend only)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, args[0], mode, filters, topK)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "hybrid", "Search mode: keyword, vector, hybrid, semantic")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Metadata filter (repeatable)")
	cmd.Flags().IntVar(&topK, "top", 10, "Maximum number of results")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query, mode string, filters []string, topK int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	spec, err := parseFilters(filters)
	if err != nil {
		return err
	}

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	results, err := p.Search(ctx, query, backend.SearchMode(mode), spec, topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "%2d. [%.4f] %s (%s, chunk %d)\n",
			i+1, r.Score, r.Title, r.FileName, r.ChunkIndex)
		fmt.Fprintf(out, "    %s\n", snippet(r.Content, 160))
	}
	return nil
}

// filterOperators maps textual operators to filter ops, longest first so
// ">=" is not parsed as ">".
var filterOperators = []struct {
	token string
	op    backend.Op
}{
	{">=", backend.OpGreaterOrEqual},
	{"<=", backend.OpLessOrEqual},
	{">", backend.OpGreaterThan},
	{"<", backend.OpLessThan},
	{"=", backend.OpEquals},
}

// parseFilters converts --filter expressions into a FilterSpec.
// "field=a|b" becomes an any-of condition.
func parseFilters(filters []string) (*backend.FilterSpec, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	spec := backend.NewFilter()
	for _, raw := range filters {
		parsed := false
		for _, candidate := range filterOperators {
			idx := strings.Index(raw, candidate.token)
			if idx <= 0 {
				continue
			}
			field := strings.TrimSpace(raw[:idx])
			value := strings.TrimSpace(raw[idx+len(candidate.token):])
			if field == "" || value == "" {
				return nil, fmt.Errorf("invalid filter %q (expected field%svalue)", raw, candidate.token)
			}

			if candidate.op == backend.OpEquals {
				if strings.Contains(value, "|") {
					parts := strings.Split(value, "|")
					values := make([]any, len(parts))
					for i, part := range parts {
						values[i] = filterValue(strings.TrimSpace(part))
					}
					spec.AnyOf(field, values...)
				} else {
					spec.Equals(field, filterValue(value))
				}
			} else {
				spec.Compare(field, candidate.op, filterValue(value))
			}
			parsed = true
			break
		}
		if !parsed {
			return nil, fmt.Errorf("invalid filter %q (expected field=value)", raw)
		}
	}
	return spec, nil
}

// filterValue types a filter literal: integers and floats become numbers,
// everything else stays a string.
func filterValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func snippet(content string, limit int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) <= limit {
		return content
	}
	return content[:limit] + "…"
}
