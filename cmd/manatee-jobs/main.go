package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manatee-project/manatee-jobs/build"
	"github.com/manatee-project/manatee-jobs/conf"
	"github.com/manatee-project/manatee-jobs/internal/initializer"
	"github.com/manatee-project/manatee-jobs/internal/manatee"
	"github.com/urfave/cli/v2"
)

const (
	FlagRepo = "repo"
)

func main() {
	app := &cli.App{
		Name:                 "manatee-jobs",
		Usage:                "Watch and manage the jobs you submitted to the data clean room.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				EnvVars: []string{"MANATEE_PATH"},
				Usage:   "repo path holding config.toml",
				Value:   "~/.manatee",
			},
		},
		Commands: []*cli.Command{
			initCmd,
			watchCmd,
			serveCmd,
			jobCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func loadConfig(cctx *cli.Context) (*conf.Config, error) {
	repoPath, err := expandHome(cctx.String(FlagRepo))
	if err != nil {
		return nil, err
	}
	cfg, err := initializer.ProjectInit(repoPath)
	if err != nil {
		return nil, fmt.Errorf("load config file failed, error: %+v", err)
	}
	return cfg, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func newClient(cfg *conf.Config) *manatee.Client {
	var opts []manatee.Option
	if cfg.API.Token != "" {
		opts = append(opts, manatee.WithHeader("Authorization", "token "+cfg.API.Token))
	}
	return manatee.NewClient(cfg.API.BaseUrl, opts...)
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "Write a config.toml into the repo path",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "server",
			EnvVars:  []string{"DATA_CLEAN_ROOM_HOST"},
			Usage:    "data clean room API address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "creator",
			Usage:    "user name the jobs are submitted as",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "token",
			EnvVars: []string{"USER_TOKEN"},
			Usage:   "data clean room access token",
		},
	},
	Action: func(cctx *cli.Context) error {
		repoPath, err := expandHome(cctx.String(FlagRepo))
		if err != nil {
			return err
		}
		configFile, err := initializer.WriteDefaultConfig(repoPath, conf.DCR{
			ServerUrl:   cctx.String("server"),
			AccessToken: cctx.String("token"),
			Creator:     cctx.String("creator"),
		})
		if err != nil {
			return err
		}
		fmt.Println("config written to", configFile)
		return nil
	},
}
