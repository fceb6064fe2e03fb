package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/DataExMachina-dev/checkpoint-go/checkpoint"
	"github.com/DataExMachina-dev/checkpoint-go/internal/config"
	"github.com/DataExMachina-dev/checkpoint-go/internal/logging"
	"github.com/DataExMachina-dev/checkpoint-go/internal/threads"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "record checkpoints of this process and serve them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
		},
		Action: runServe,
	}
}

// recorderOptions translates the daemon configuration into recorder options.
func recorderOptions(cfg *config.Config, log hclog.Logger) ([]checkpoint.Option, error) {
	initial, err := cfg.Buffer.Initial.Bytes()
	if err != nil {
		return nil, err
	}
	maxSize, err := cfg.Buffer.Max.Bytes()
	if err != nil {
		return nil, err
	}
	opts := []checkpoint.Option{
		checkpoint.WithListenAddr(cfg.Listen),
		checkpoint.WithLogger(log),
		checkpoint.WithErrorLogger(func(err error) {
			log.Error("checkpoint error", "error", err)
		}),
		checkpoint.WithInitialBuffer(initial),
		checkpoint.WithMaxBuffer(maxSize),
		checkpoint.WithRetain(cfg.Retain),
		checkpoint.WithInterval(cfg.Capture.Interval),
		checkpoint.WithCaptureRate(cfg.Capture.Rate, cfg.Capture.Burst),
		checkpoint.WithStoreRetain(cfg.Store.Retain),
	}
	if cfg.Store.Memory {
		opts = append(opts, checkpoint.WithInMemoryStore())
	} else {
		opts = append(opts, checkpoint.WithStoreDir(cfg.Store.Dir))
	}
	if cfg.Debug {
		opts = append(opts, checkpoint.WithDebug())
	}
	if cfg.Capture.Threads {
		opts = append(opts, checkpoint.WithThreadStartCheckpoints())
	}
	return opts, nil
}

func runServe(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	log := logging.New(logging.Options{
		Name:   "checkpointctl",
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Output: c.App.ErrWriter,
	})
	opts, err := recorderOptions(cfg, log)
	if err != nil {
		return err
	}
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts = append(opts, checkpoint.WithMetrics(promReg))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := checkpoint.DefaultRegistry()
	system := reg.NewGroup("system", nil)
	mainThread := reg.StartManaged("main", threads.CurrentOSID(), reg.NewGroup("main", system))
	defer reg.Exit(mainThread)

	if err := checkpoint.Init(ctx, opts...); err != nil {
		return err
	}
	defer checkpoint.Stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.HTTP != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		mux.Handle("/", checkpoint.HTTPHandler())
		hs := &http.Server{Addr: cfg.HTTP, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			th := reg.StartNative("http-server", threads.CurrentOSID())
			defer reg.Exit(th)
			log.Info("serving http", "addr", cfg.HTTP)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	err = g.Wait()
	log.Info("shutting down")
	return err
}
