package util

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/manatee-project/manatee-jobs/conf"
)

type StopFunc func(context.Context) error

type ShutdownHandler struct {
	Component string
	StopFunc  StopFunc
}

func MonitorShutdown(triggerCh <-chan struct{}, handlers ...ShutdownHandler) <-chan struct{} {
	sigCh := make(chan os.Signal, 2)
	out := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logs.GetLogger().WithField("signal", sig).Warn("received shutdown")
		case <-triggerCh:
			logs.GetLogger().Warn("received shutdown")
		}

		logs.GetLogger().Warn("Shutting down...")

		for _, h := range handlers {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := h.StopFunc(ctx)
			cancel()
			if err != nil {
				logs.GetLogger().Errorf("shutting down %s failed: %s", h.Component, err)
				continue
			}
			logs.GetLogger().Infof("%s shut down successfully", h.Component)
		}

		logs.GetLogger().Warn("Graceful shutdown successful")

		close(out)
	}()

	signal.Reset(syscall.SIGTERM, syscall.SIGINT)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	return out
}

// ServeHttp starts h on addr in the background. TLS is used when both a
// certificate and a key are configured under [API].
func ServeHttp(h http.Handler, name string, addr string) (StopFunc, error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 60 * time.Second,
	}

	var certFile, keyFile string
	if cfg := conf.GetConfig(); cfg != nil {
		certFile, keyFile = cfg.API.CrtFile, cfg.API.KeyFile
	}
	useTLS := certFile != "" && keyFile != ""
	if useTLS {
		if _, err := os.Stat(certFile); err != nil {
			return nil, err
		}
	}

	go func() {
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.GetLogger().Fatalf("service: %s, listen: %s", name, err)
		}
	}()

	logs.GetLogger().Infof("%s listening on %s, tls: %t", name, addr, useTLS)
	return srv.Shutdown, nil
}
