package panel

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

type cell struct {
	row, column int
}

// VisualTable is a borderless, tab-padded table whose cells can be colored
// one by one.
type VisualTable struct {
	Header []string
	Data   [][]string

	colors map[cell]tablewriter.Colors
}

func NewVisualTable(header []string, data [][]string) *VisualTable {
	return &VisualTable{
		Header: header,
		Data:   data,
		colors: map[cell]tablewriter.Colors{},
	}
}

// Paint colors a single cell. Out of range cells are ignored at render time.
func (v *VisualTable) Paint(row, column int, colors tablewriter.Colors) *VisualTable {
	v.colors[cell{row, column}] = colors
	return v
}

func (v *VisualTable) Generate(out io.Writer) {
	table := tablewriter.NewWriter(out)
	if len(v.Header) > 0 {
		table.SetHeader(v.Header)
	}

	for i, row := range v.Data {
		rowColors := make([]tablewriter.Colors, len(row))
		painted := false
		for j := range row {
			if c, ok := v.colors[cell{i, j}]; ok {
				rowColors[j] = c
				painted = true
			}
		}
		if painted {
			table.Rich(row, rowColors)
		} else {
			table.Append(row)
		}
	}

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.Render()
}
