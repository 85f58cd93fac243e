package panel

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/manatee-project/manatee-jobs/internal/i18n"
	"github.com/manatee-project/manatee-jobs/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestStatusGlyph(t *testing.T) {
	assert.Equal(t, "✔", StatusGlyph(models.JobFinished))
	assert.Equal(t, "⟳", StatusGlyph(models.JobRunningExecutor))
	assert.Equal(t, "✖", StatusGlyph(models.JobLaunchFailed))
	assert.Equal(t, "!", StatusGlyph(models.JobStatusUnknown))
	assert.Equal(t, "…", StatusGlyph(models.JobStatus(12)))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, i18n.NewTranslator("en-US"))

	pagination := models.DefaultPagination()
	pagination.Total = 37
	r.RenderTable(View{
		Jobs: []models.Job{
			{ID: 1, JupyterFileName: "a.ipynb", JobStatus: models.JobFinished},
			{ID: 2, JupyterFileName: "b.ipynb", JobStatus: models.JobStatus(99)},
		},
		Pagination: pagination,
		Busy:       true,
	})

	out := stripansi.Strip(buf.String())
	assert.Contains(t, out, "FILENAME")
	assert.Contains(t, out, "a.ipynb")
	assert.Contains(t, out, "✔")
	assert.Contains(t, out, "…")
	assert.NotContains(t, out, "Finished")
	assert.Contains(t, out, "Page 1 of 4 (37 jobs)")
	assert.Contains(t, out, "Loading...")
}

func TestRenderDetail(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, nil)

	r.RenderDetail(models.Job{ID: 7, JupyterFileName: "a.ipynb", JobStatus: models.JobFinished, CreatedAt: "1/2/2024, 3:04:05 PM"})
	out := stripansi.Strip(buf.String())
	assert.Contains(t, out, "JOB ID:")
	assert.Contains(t, out, "Finished")
	assert.Contains(t, out, "1/2/2024, 3:04:05 PM")
	assert.Contains(t, out, "[Output] [Report]")
	assert.NotContains(t, out, "(disabled)")

	buf.Reset()
	r.RenderDetail(models.Job{ID: 8, JupyterFileName: "b.ipynb", JobStatus: models.JobStatus(0)})
	out = stripansi.Strip(buf.String())
	assert.Contains(t, out, "Unknown")
	assert.Contains(t, out, "(disabled)")
}

func TestTerminalDialogConfirm(t *testing.T) {
	lines := make(chan string, 2)
	var out bytes.Buffer
	d := NewTerminalDialog(lines, &out)

	lines <- "y"
	ok, err := d.Confirm(context.Background(), DownloadConfirmTitle, "Job ID: 3")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, stripansi.Strip(out.String()), "Download the output of the Job?")
	assert.Contains(t, out.String(), "Job ID: 3")

	lines <- "no thanks"
	ok, err = d.Confirm(context.Background(), DownloadConfirmTitle, "Job ID: 3")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, d.Active())
}

func TestTerminalDialogConfirmCancelled(t *testing.T) {
	d := NewTerminalDialog(make(chan string), &bytes.Buffer{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ok, err := d.Confirm(ctx, "title", "body")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTerminalDialogShow(t *testing.T) {
	var out bytes.Buffer
	d := NewTerminalDialog(nil, &out)

	assert.NoError(t, d.Show(context.Background(), DownloadSuccessTitle, "Filename: out.csv"))
	text := stripansi.Strip(out.String())
	assert.True(t, strings.Contains(text, "Download Successful"))
	assert.True(t, strings.Contains(text, "Filename: out.csv"))
}
