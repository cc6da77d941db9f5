// Command tasksplit-api serves the splitting strategies over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zhchang/tasksplit/api"
	"github.com/zhchang/tasksplit/cmd/internal/setup"
	"github.com/zhchang/tasksplit/config"
	"github.com/zhchang/tasksplit/splitter"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatal(err)
	}
	cfg.Log.Apply()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := []api.Option{api.WithDefaults(cfg.Split.DefaultMeters, cfg.Split.DefaultBuildings)}
	if cfg.DB.URL != "" {
		extractor, closeCache := setup.Extractor(ctx, cfg.Extract)
		defer closeCache()
		orchestrator, store, err := setup.Density(ctx, cfg, "", extractor)
		if err != nil {
			logrus.Fatal(err)
		}
		defer store.Close()
		options = append(options, api.WithDensity(orchestrator, store))
	} else {
		logrus.Warn("db.url not set, /average-building disabled")
	}

	sp := splitter.New(splitter.WithConcurrency(cfg.Split.Concurrency))
	srv := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           api.NewServer(sp, options...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			logrus.Errorf("shutdown: %s", err)
		}
	}()

	logrus.Infof("listening on %s", cfg.API.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.Fatal(err)
	}
	<-done
}
