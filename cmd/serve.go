package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/http-heartbeat/config"
	"github.com/angeloszaimis/http-heartbeat/internal/command"
	"github.com/angeloszaimis/http-heartbeat/internal/handler"
	"github.com/angeloszaimis/http-heartbeat/internal/heartbeat"
	"github.com/angeloszaimis/http-heartbeat/internal/httpserver"
	"github.com/angeloszaimis/http-heartbeat/internal/notify"
	"github.com/angeloszaimis/http-heartbeat/internal/prober"
	"github.com/angeloszaimis/http-heartbeat/internal/registry"
	"github.com/angeloszaimis/http-heartbeat/internal/store"
	"github.com/angeloszaimis/http-heartbeat/pkg/logger"
)

const storePingTimeout = 3 * time.Second

func serveCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the heartbeat daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file (default: config.yaml in ./config or .)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, out)

	consoleSink := notify.NewConsole(out, cfg.Notifier.Color)
	collector := notify.NewCollector(cfg.Notifier.BufferSize, log,
		withoutCommands(consoleSink),
		notify.NewLogSink(log),
	)
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	collector.Start(collectorCtx)
	defer func() {
		stopCollector()
		<-collector.Done()
	}()

	st, closeStore, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeStore()

	p, err := prober.New(prober.Options{
		Timeout: cfg.Probe.TimeoutDuration(),
		HTTP2:   cfg.Probe.HTTP2,
	}, collector)
	if err != nil {
		return fmt.Errorf("create prober: %w", err)
	}

	reg := registry.New(registry.Options{
		Prober:   p,
		Store:    st,
		Notifier: collector,
		Logger:   log,
		Schedule: heartbeat.Options{Warmup: cfg.Probe.WarmupDuration()},
	})
	defer reg.ShutdownAll()

	loaded, err := reg.Restore(ctx)
	if err != nil {
		log.Error("Failed to restore endpoints", slog.Any("err", err))
	} else {
		log.Info("Restored endpoints", slog.Int("count", loaded))
	}

	console := command.New(reg, collector, log)

	srv, err := httpserver.New(cfg.Server.Address, handler.New(log, console, reg).Routes(), log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if cfg.Console.Enabled {
		go readCommands(ctx, in, console, consoleSink)
	}

	if err := srv.Run(ctx); err != nil {
		log.Error("Admin API failed", slog.Any("err", err))
		return err
	}

	log.Info("Shutting down gracefully...")
	return nil
}

// readCommands runs text commands typed on in until it is closed or ctx is
// done.
func readCommands(ctx context.Context, in io.Reader, console *command.Console, out *notify.Console) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		reply := console.Execute(ctx, scanner.Text())
		for _, line := range reply.Lines {
			out.Println(line)
		}
	}
}

// withoutCommands keeps command outcomes off the console; whoever issued
// the command already prints the reply.
func withoutCommands(sink notify.Notifier) notify.Notifier {
	return notify.Func(func(e notify.Event) {
		if e.Kind != notify.KindCommand {
			sink.Notify(e)
		}
	})
}

func openStore(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.StorageRedis:
		rs := store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})

		pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = rs.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Address, err)
		}

		log.Info("Using redis store", slog.String("addr", cfg.Redis.Address), slog.String("prefix", cfg.Redis.Prefix))
		return rs, func() {
			if err := rs.Close(); err != nil {
				log.Warn("Failed to close redis store", slog.Any("err", err))
			}
		}, nil
	default:
		log.Info("Using file store", slog.String("path", cfg.Path))
		return store.NewFileStore(cfg.Path), func() {}, nil
	}
}
