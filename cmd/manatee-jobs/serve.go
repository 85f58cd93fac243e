package main

import (
	"context"
	"strconv"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/manatee-project/manatee-jobs/internal/cache"
	"github.com/manatee-project/manatee-jobs/internal/proxy"
	"github.com/manatee-project/manatee-jobs/util"
	"github.com/urfave/cli/v2"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Start the manatee API in front of the data clean room",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "pprof",
			Usage: "expose /debug/pprof",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "run gin in debug mode",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if err := cfg.RequireDCR(); err != nil {
			return err
		}
		logs.GetLogger().Infof("Start manatee API, data clean room: %s, creator: %s", cfg.DCR.ServerUrl, cfg.DCR.Creator)

		if !cctx.Bool("debug") {
			gin.SetMode(gin.ReleaseMode)
		}

		tokens, err := cache.New(cfg.Cache)
		if err != nil {
			return err
		}

		dcr := proxy.NewDCRClient(cfg.DCR.ServerUrl, cfg.DCR.AccessToken, cfg.DCR.Creator)
		server := proxy.NewServer(dcr, proxy.ServerOptions{
			OutputDir:    cfg.Workspace.OutputDir,
			WorkspaceDir: cfg.Workspace.Dir,
			Tokens:       tokens,
			PollInterval: cfg.Panel.PollInterval(),
		})
		r := proxy.NewRouter(server, proxy.RouterOptions{
			Token:       cfg.API.Token,
			EnablePprof: cfg.API.EnablePprof || cctx.Bool("pprof"),
		})

		shutdownChan := make(chan struct{})
		httpStopper, err := util.ServeHttp(r, "manatee-api", ":"+strconv.Itoa(cfg.API.Port))
		if err != nil {
			tokens.Close()
			return err
		}

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "manatee-api", StopFunc: httpStopper},
			util.ShutdownHandler{Component: "token-cache", StopFunc: func(context.Context) error {
				return tokens.Close()
			}},
		)
		<-finishCh

		return nil
	},
}
