package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/manatee-project/manatee-jobs/conf"
	"github.com/manatee-project/manatee-jobs/internal/i18n"
	"github.com/manatee-project/manatee-jobs/internal/manatee"
	"github.com/manatee-project/manatee-jobs/internal/models"
	"github.com/manatee-project/manatee-jobs/internal/panel"
	"github.com/manatee-project/manatee-jobs/util"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var outputFlag = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "output format: table, json or yaml",
	Value:   outputTable,
}

var jobCmd = &cli.Command{
	Name:  "job",
	Usage: "Query jobs without the interactive panel",
	Subcommands: []*cli.Command{
		jobSubmit,
		jobList,
		jobGet,
		jobOutput,
		jobAttestation,
	},
}

var jobSubmit = &cli.Command{
	Name:      "submit",
	Usage:     "Submit a notebook of the workspace as a new job",
	ArgsUsage: "<notebook path>",
	Flags:     []cli.Flag{outputFlag},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return errors.New("expected exactly one notebook path")
		}
		path := cctx.Args().First()
		filename := filepath.Base(path)
		if filepath.Ext(filename) != ".ipynb" {
			return fmt.Errorf("not a notebook: %s", path)
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext(cctx.Context)
		defer cancel()

		resp, err := newClient(cfg).SubmitJob(ctx, filename, path)
		if err != nil {
			return err
		}
		return printResult(os.Stdout, cctx.String("output"), resp, func(out io.Writer) {
			fmt.Fprintf(out, "Job %s submitted\n", filename)
		})
	},
}

var jobList = &cli.Command{
	Name:  "list",
	Usage: "List one page of jobs",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "page",
			Usage: "page number, starting at 1",
			Value: models.DefaultPage,
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "jobs per page",
			Value: models.DefaultPageSize,
		},
		outputFlag,
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext(cctx.Context)
		defer cancel()

		page, pageSize := cctx.Int("page"), cctx.Int("page-size")
		if page < 1 || pageSize < 1 {
			return fmt.Errorf("invalid pagination, page: %d, page_size: %d", page, pageSize)
		}

		resp, err := newClient(cfg).ListJobs(ctx, page, pageSize)
		if err != nil {
			return err
		}

		return printResult(os.Stdout, cctx.String("output"), resp, func(out io.Writer) {
			tr := i18n.NewTranslator(cfg.Panel.Locale)
			pagination := models.DefaultPagination()
			pagination.Current, pagination.PageSize, pagination.Total = page, pageSize, resp.Total

			panel.NewRenderer(out, tr).RenderTable(panel.View{
				Jobs:       formatJobs(cfg, resp.Jobs),
				Pagination: pagination,
			})
		})
	},
}

var jobGet = &cli.Command{
	Name:      "get",
	Usage:     "Show the details of a job",
	ArgsUsage: "<job id>",
	Flags:     []cli.Flag{outputFlag},
	Action: func(cctx *cli.Context) error {
		id, err := jobIDArg(cctx)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext(cctx.Context)
		defer cancel()

		job, err := findJob(ctx, newClient(cfg), id)
		if err != nil {
			return err
		}

		return printResult(os.Stdout, cctx.String("output"), job, func(out io.Writer) {
			tr := i18n.NewTranslator(cfg.Panel.Locale)
			panel.NewRenderer(out, tr).RenderDetail(formatJobs(cfg, []models.Job{*job})[0])
		})
	},
}

var jobOutput = &cli.Command{
	Name:      "output",
	Usage:     "Download the output of a finished job into the workspace",
	ArgsUsage: "<job id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "skip the finished check",
		},
		outputFlag,
	},
	Action: func(cctx *cli.Context) error {
		id, err := jobIDArg(cctx)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext(cctx.Context)
		defer cancel()

		client := newClient(cfg)
		if !cctx.Bool("force") {
			if err := requireFinished(ctx, client, id); err != nil {
				return err
			}
		}

		resp, err := client.DownloadOutput(ctx, id)
		if err != nil {
			return err
		}
		return printResult(os.Stdout, cctx.String("output"), resp, func(out io.Writer) {
			fmt.Fprintln(out, panel.DownloadSuccessTitle)
			fmt.Fprintln(out, "Filename: "+resp.Filename)
		})
	},
}

var jobAttestation = &cli.Command{
	Name:      "attestation",
	Usage:     "Print the attestation token of a finished job",
	ArgsUsage: "<job id>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "skip the finished check",
		},
		outputFlag,
	},
	Action: func(cctx *cli.Context) error {
		id, err := jobIDArg(cctx)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext(cctx.Context)
		defer cancel()

		client := newClient(cfg)
		if !cctx.Bool("force") {
			if err := requireFinished(ctx, client, id); err != nil {
				return err
			}
		}

		resp, err := client.GetAttestation(ctx, id)
		if err != nil {
			return err
		}
		return printResult(os.Stdout, cctx.String("output"), resp, func(out io.Writer) {
			fmt.Fprintln(out, resp.Token)
		})
	},
}

func jobIDArg(cctx *cli.Context) (int64, error) {
	if cctx.NArg() != 1 {
		return 0, errors.New("expected exactly one job id")
	}
	id, err := strconv.ParseInt(cctx.Args().First(), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job id: %s", cctx.Args().First())
	}
	return id, nil
}

type jobLister interface {
	ListJobs(ctx context.Context, page, pageSize int) (*models.ListJobsResp, error)
}

// findJob walks the pages until the job shows up.
func findJob(ctx context.Context, client jobLister, id int64) (*models.Job, error) {
	const pageSize = 50
	for page := 1; ; page++ {
		resp, err := client.ListJobs(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		for i := range resp.Jobs {
			if resp.Jobs[i].ID == id {
				return &resp.Jobs[i], nil
			}
		}
		if len(resp.Jobs) == 0 || int64(page*pageSize) >= resp.Total {
			return nil, fmt.Errorf("job %d not found", id)
		}
	}
}

func requireFinished(ctx context.Context, client jobLister, id int64) error {
	job, err := findJob(ctx, client, id)
	if err != nil {
		return err
	}
	if !job.IsFinished() {
		return fmt.Errorf("job %d is %s: %w", id, job.JobStatus, panel.ErrJobNotFinished)
	}
	return nil
}

func formatJobs(cfg *conf.Config, jobs []models.Job) []models.Job {
	formatter := i18n.NewTimestampFormatter(cfg.Panel.Locale, nil)
	out := make([]models.Job, len(jobs))
	for i, job := range jobs {
		job.CreatedAt = formatter.Format(job.CreatedAt)
		job.UpdatedAt = formatter.Format(job.UpdatedAt)
		out[i] = job
	}
	return out
}

func printResult(out io.Writer, format string, v interface{}, table func(io.Writer)) error {
	switch format {
	case outputTable, "":
		table(out)
		return nil
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	return fmt.Errorf("unknown output format: %s", format)
}

var _ jobLister = (*manatee.Client)(nil)
