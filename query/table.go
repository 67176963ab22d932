package query

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// markdownTable renders rows as a markdown table.
func markdownTable(header []string, rows [][]string) string {
	var buf strings.Builder
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	h := make([]any, len(header))
	for i, v := range header {
		h[i] = v
	}
	table.Header(h...)
	for _, row := range rows {
		r := make([]any, len(row))
		for i, v := range row {
			r[i] = v
		}
		_ = table.Append(r...)
	}
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}
