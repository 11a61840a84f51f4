package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderTable draws a rounded table. Columns listed in numeric are right
// aligned.
func renderTable(headers []string, rows [][]string, numeric ...int) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(numeric))
	for _, col := range numeric {
		configs = append(configs, table.ColumnConfig{
			Number:      col + 1,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
