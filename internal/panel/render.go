package panel

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/manatee-project/manatee-jobs/internal/i18n"
	"github.com/manatee-project/manatee-jobs/internal/models"
	"github.com/olekukonko/tablewriter"
)

const refreshGlyph = "↻"

var iconGlyphs = map[models.Icon]string{
	models.IconSync:              "⟳",
	models.IconCloseCircle:       "✖",
	models.IconCheckCircle:       "✔",
	models.IconExclamationCircle: "!",
	models.IconLoading:           "…",
}

var iconColors = map[string]tablewriter.Colors{
	"red":     {tablewriter.Bold, tablewriter.FgRedColor},
	"green":   {tablewriter.Bold, tablewriter.FgGreenColor},
	"#ffcd00": {tablewriter.Bold, tablewriter.FgYellowColor},
}

var tagColors = map[models.TagColor]tablewriter.Colors{
	models.TagGreen: {tablewriter.Bold, tablewriter.FgGreenColor},
	models.TagRed:   {tablewriter.Bold, tablewriter.FgRedColor},
	models.TagGray:  {tablewriter.Bold, tablewriter.FgHiBlackColor},
}

// StatusGlyph is the list-column glyph of a status code.
func StatusGlyph(s models.JobStatus) string {
	return iconGlyphs[models.StatusIcon(s)]
}

// Renderer draws panel views as terminal tables.
type Renderer struct {
	out io.Writer
	tr  i18n.Translator
}

func NewRenderer(out io.Writer, tr i18n.Translator) *Renderer {
	if tr == nil {
		tr = i18n.NullTranslator()
	}
	return &Renderer{out: out, tr: tr}
}

func (r *Renderer) RenderTitle(title string) {
	fmt.Fprintln(r.out, color.New(color.Bold, color.Underline).Sprint(title))
}

// RenderTable draws the job list with the status as an icon only, then the
// pagination footer.
func (r *Renderer) RenderTable(view View) {
	data := make([][]string, 0, len(view.Jobs))
	for _, job := range view.Jobs {
		data = append(data, []string{strconv.FormatInt(job.ID, 10), job.JupyterFileName, StatusGlyph(job.JobStatus)})
	}

	table := NewVisualTable([]string{"ID", "Filename", refreshGlyph}, data)
	for i, job := range view.Jobs {
		if style, ok := models.LookupStatus(job.JobStatus); ok {
			if c, ok := iconColors[style.IconColor]; ok {
				table.Paint(i, 2, c)
			}
		}
	}
	table.Generate(r.out)
	r.RenderFooter(view.Pagination, view.Busy)
}

func (r *Renderer) RenderFooter(p models.Pagination, busy bool) {
	footer := r.tr.Translate("Page %d of %d (%d jobs)", p.Current, p.PageCount(), p.Total)
	if busy {
		footer += "  " + r.tr.Translate("Loading...")
	}
	fmt.Fprintln(r.out, color.New(color.Faint).Sprint(footer))
}

// RenderDetail draws the expanded row of a job.
func (r *Renderer) RenderDetail(job models.Job) {
	tagColor, tagText := models.StatusTag(job.JobStatus)

	actions := "[Output] [Report]"
	actionColor := tablewriter.Colors{tablewriter.Bold, tablewriter.FgBlueColor}
	if !job.IsFinished() {
		actions += " (disabled)"
		actionColor = tablewriter.Colors{tablewriter.FgHiBlackColor}
	}

	var data [][]string
	data = append(data, []string{"Jupyter File:", job.JupyterFileName})
	data = append(data, []string{"Job Status:", tagText})
	data = append(data, []string{"Created At:", job.CreatedAt})
	data = append(data, []string{"Updated At:", job.UpdatedAt})
	data = append(data, []string{"Download:", actions})

	header := []string{"Job ID:", strconv.FormatInt(job.ID, 10)}
	NewVisualTable(header, data).
		Paint(1, 1, tagColors[tagColor]).
		Paint(4, 1, actionColor).
		Generate(r.out)
}
