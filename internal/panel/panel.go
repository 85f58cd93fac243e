package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/manatee-project/manatee-jobs/constants"
	"github.com/manatee-project/manatee-jobs/internal/i18n"
	"github.com/manatee-project/manatee-jobs/internal/manatee"
	"github.com/manatee-project/manatee-jobs/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrJobNotFinished = errors.New("job is not finished")

const (
	DownloadConfirmTitle = "Download the output of the Job?"
	DownloadSuccessTitle = "Download Successful"
	DownloadFailedTitle  = "Download Failed"
	DownloadServerError  = "Server error during download."

	AttestationConfirmTitle = "Get Attestation Report of the Job?"
	AttestationSuccessTitle = "Get Attestation Report Successful"
	AttestationFailedTitle  = "Get Attestation Report Failed"
	InvalidResponseTitle    = "Invalid Response"
)

// JobSource is the network side of the panel. *manatee.Client implements it.
type JobSource interface {
	ListJobs(ctx context.Context, page, pageSize int) (*models.ListJobsResp, error)
	DownloadOutput(ctx context.Context, id int64) (*models.OutputResp, error)
	GetAttestation(ctx context.Context, id int64) (*models.AttestationResp, error)
}

type Options struct {
	// PollInterval is the wall-clock refresh period. Default 10s.
	PollInterval time.Duration
	// PageChangeDelay is held with the busy flag set before a page change
	// fetch. Default 1s.
	PageChangeDelay time.Duration
	// PageSize is the initial page size. Default 10.
	PageSize int
	// SizeCanChange is carried into the pagination display flags.
	SizeCanChange bool

	Formatter *i18n.TimestampFormatter
	Logger    logrus.FieldLogger
	// OnChange is called after every state change, outside the panel lock.
	OnChange func()
}

// View is a point-in-time copy of the panel state for rendering.
type View struct {
	Jobs       []models.Job
	Pagination models.Pagination
	Busy       bool
}

// JobStatusPanel keeps the current page of jobs in sync with the server and
// runs the per-row actions.
type JobStatusPanel struct {
	source JobSource
	dialog Dialog
	opts   Options
	log    logrus.FieldLogger
	poller *poller

	mu         sync.Mutex
	jobs       []models.Job
	pagination models.Pagination
	busy       bool
	mounted    bool
	cancel     context.CancelFunc
	ctx        context.Context

	// target is the cursor list responses must match: the committed cursor,
	// or the new one while a page change is fetching
	target models.Cursor

	// list fetch sequence numbers: issued at request time, applied on response
	issued  uint64
	applied uint64
}

func New(source JobSource, dialog Dialog, opts Options) *JobStatusPanel {
	if opts.PollInterval <= 0 {
		opts.PollInterval = constants.DefaultPollIntervalSeconds * time.Second
	}
	if opts.PageChangeDelay <= 0 {
		opts.PageChangeDelay = constants.DefaultPageChangeDelayMillis * time.Millisecond
	}
	if opts.PageSize <= 0 {
		opts.PageSize = models.DefaultPageSize
	}
	var logger logrus.FieldLogger = logs.GetLogger()
	if opts.Logger != nil {
		logger = opts.Logger
	}

	pagination := models.DefaultPagination()
	pagination.PageSize = opts.PageSize
	pagination.SizeCanChange = opts.SizeCanChange

	p := &JobStatusPanel{
		source:     source,
		dialog:     dialog,
		opts:       opts,
		log:        logger,
		pagination: pagination,
		target:     pagination.Cursor(),
	}
	p.poller = newPoller(opts.PollInterval, func(ctx context.Context, cursor models.Cursor) {
		p.fetchJobs(ctx, cursor)
	})
	return p
}

// Mount loads the first page and starts polling. Calling it on a mounted
// panel does nothing.
func (p *JobStatusPanel) Mount(ctx context.Context) {
	p.mu.Lock()
	if p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	mountCtx := p.ctx
	cursor := p.target
	p.mu.Unlock()

	p.poller.arm(mountCtx, cursor)

	p.setBusy(true)
	p.fetchJobs(mountCtx, cursor)
	p.setBusy(false)
}

// Unmount stops polling and cancels in-flight fetches started by the panel.
func (p *JobStatusPanel) Unmount() {
	p.mu.Lock()
	if !p.mounted {
		p.mu.Unlock()
		return
	}
	p.mounted = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	p.poller.disarm()
	cancel()
}

// Refresh fetches the current page outside the polling cadence.
func (p *JobStatusPanel) Refresh(ctx context.Context) {
	p.mu.Lock()
	cursor := p.target
	p.mu.Unlock()
	p.fetchJobs(ctx, cursor)
}

// ChangePage moves to another page or page size. The busy flag is held for
// the page change delay, then the poller is re-armed with the new cursor,
// the new page is fetched and the cursor committed.
func (p *JobStatusPanel) ChangePage(ctx context.Context, current, pageSize int) error {
	if current < 1 || pageSize < 1 {
		return fmt.Errorf("invalid pagination, page: %d, page_size: %d", current, pageSize)
	}

	p.mu.Lock()
	cursor := p.pagination.Resolve(current, pageSize)
	p.mu.Unlock()

	p.setBusy(true)
	timer := time.NewTimer(p.opts.PageChangeDelay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		p.setBusy(false)
		return ctx.Err()
	}

	p.mu.Lock()
	p.target = cursor
	mounted, panelCtx := p.mounted, p.ctx
	p.mu.Unlock()

	if mounted {
		p.poller.arm(panelCtx, cursor)
	}
	p.fetchJobs(ctx, cursor)

	p.mu.Lock()
	p.pagination.Current = cursor.Current
	p.pagination.PageSize = cursor.PageSize
	p.busy = false
	p.mu.Unlock()
	p.notify()
	return nil
}

func (p *JobStatusPanel) Cursor() models.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pagination.Cursor()
}

func (p *JobStatusPanel) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

func (p *JobStatusPanel) Snapshot() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobs := make([]models.Job, len(p.jobs))
	copy(jobs, p.jobs)
	return View{
		Jobs:       jobs,
		Pagination: p.pagination,
		Busy:       p.busy,
	}
}

// Find returns the job with the given id from the current page.
func (p *JobStatusPanel) Find(id int64) (models.Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, job := range p.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return models.Job{}, false
}

// fetchJobs replaces the job list with the requested page. Failures are
// logged only and leave the state untouched. A response is dropped when a
// later-issued fetch has already been applied, or when it is for a cursor
// the panel has moved away from.
func (p *JobStatusPanel) fetchJobs(ctx context.Context, cursor models.Cursor) bool {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.mu.Unlock()

	resp, err := p.source.ListJobs(ctx, cursor.Current, cursor.PageSize)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		var apiErr *manatee.APIError
		if errors.As(err, &apiErr) {
			p.log.Errorf("error: %s", apiErr.Msg)
		} else {
			p.log.Errorf("failed to list jobs, page: %d, page_size: %d, error: %v", cursor.Current, cursor.PageSize, err)
		}
		return false
	}

	jobs := p.normalize(resp.Jobs)

	p.mu.Lock()
	if cursor != p.target {
		target := p.target
		p.mu.Unlock()
		p.log.Debugf("discard job list response #%d for page %d/%d, showing page %d/%d",
			seq, cursor.Current, cursor.PageSize, target.Current, target.PageSize)
		return false
	}
	if seq < p.applied {
		p.mu.Unlock()
		p.log.Debugf("discard stale job list response #%d, already applied #%d", seq, p.applied)
		return false
	}
	p.applied = seq
	p.jobs = jobs
	p.pagination.Total = resp.Total
	p.mu.Unlock()

	p.notify()
	return true
}

func (p *JobStatusPanel) normalize(in []models.Job) []models.Job {
	jobs := make([]models.Job, len(in))
	for i, job := range in {
		if p.opts.Formatter != nil {
			job.CreatedAt = p.opts.Formatter.Format(job.CreatedAt)
			job.UpdatedAt = p.opts.Formatter.Format(job.UpdatedAt)
		}
		jobs[i] = job
	}
	return jobs
}

// DownloadOutput asks for confirmation, then has the server fetch the job
// output. Server and application failures are reported in a dialog; other
// failures are only logged.
func (p *JobStatusPanel) DownloadOutput(ctx context.Context, job models.Job) error {
	if !job.IsFinished() {
		return ErrJobNotFinished
	}

	accept, err := p.dialog.Confirm(ctx, DownloadConfirmTitle, fmt.Sprintf("Job ID: %d", job.ID))
	if err != nil {
		return err
	}
	if !accept {
		return nil
	}

	resp, err := p.source.DownloadOutput(ctx, job.ID)
	var (
		statusErr *manatee.StatusError
		apiErr    *manatee.APIError
	)
	switch {
	case err == nil:
		return p.dialog.Show(ctx, DownloadSuccessTitle, "Filename: "+resp.Filename)
	case errors.As(err, &statusErr):
		p.log.Errorf("download output of job %d failed: %v", job.ID, statusErr)
		return p.dialog.Show(ctx, DownloadFailedTitle, DownloadServerError)
	case errors.As(err, &apiErr):
		return p.dialog.Show(ctx, DownloadFailedTitle, "Error: "+apiErr.Msg)
	case errors.Is(err, manatee.ErrEmptyBody):
		p.log.Error("stream is closed")
	default:
		p.log.Errorf("Error during download: %v", err)
	}
	return nil
}

// GetAttestation asks for confirmation, then fetches the attestation token.
// Unlike the list fetch, a body that does not parse is reported to the user.
func (p *JobStatusPanel) GetAttestation(ctx context.Context, job models.Job) error {
	if !job.IsFinished() {
		return ErrJobNotFinished
	}

	accept, err := p.dialog.Confirm(ctx, AttestationConfirmTitle, fmt.Sprintf("Job id: %d", job.ID))
	if err != nil {
		return err
	}
	if !accept {
		return nil
	}

	resp, err := p.source.GetAttestation(ctx, job.ID)
	var (
		statusErr *manatee.StatusError
		apiErr    *manatee.APIError
		decodeErr *manatee.DecodeError
	)
	switch {
	case err == nil:
		return p.dialog.Show(ctx, AttestationSuccessTitle, "OIDC Token: "+resp.Token)
	case errors.As(err, &statusErr):
		p.log.Errorf("get attestation of job %d failed: %v", job.ID, statusErr)
		return p.dialog.Show(ctx, AttestationFailedTitle, "")
	case errors.As(err, &apiErr):
		return p.dialog.Show(ctx, AttestationFailedTitle, "Error: "+apiErr.Msg)
	case errors.As(err, &decodeErr):
		p.log.Errorf("Failed to parse response JSON: %v", decodeErr.Err)
		return p.dialog.Show(ctx, InvalidResponseTitle, "Could not parse JSON: "+decodeErr.Err.Error())
	case errors.Is(err, manatee.ErrEmptyBody):
		p.log.Errorf("Failed to parse response JSON: %v", err)
		return p.dialog.Show(ctx, InvalidResponseTitle, "Could not parse JSON: unexpected end of JSON input")
	default:
		p.log.Errorf("get attestation of job %d failed: %v", job.ID, err)
	}
	return nil
}

func (p *JobStatusPanel) setBusy(busy bool) {
	p.mu.Lock()
	p.busy = busy
	p.mu.Unlock()
	p.notify()
}

func (p *JobStatusPanel) notify() {
	if p.opts.OnChange != nil {
		p.opts.OnChange()
	}
}
