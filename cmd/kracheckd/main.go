package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	_ "time/tzdata"

	"kracheck-backend/internal/components/telemetry"
	"kracheck-backend/internal/scrapers/itax"
	"kracheck-backend/internal/service"
	"kracheck-backend/pkg/configutil"
	"kracheck-backend/pkg/serviceutil"

	"connectrpc.com/connect"
)

func initTelemetry(ctx context.Context, verbose bool, tel telemetry.API) {
	telemetry.InitSlog(verbose)
	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	otel, err := telemetry.SetupFromEnv(ctx, "kracheckd")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("shutdown telemetry", "err", err)
		}
	}()
	telemetry.InstrumentPerfStats(ctx, tel)
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()
	tel := telemetry.SlogAPI{}

	initTelemetry(ctx, *verbose, tel)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config.json5 found, using defaults")
	} else if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	var output telemetry.Output
	if *verbose {
		fsOutput, err := telemetry.NewFilesystemOutput(".dev/resty/itax", tel)
		if err != nil {
			serviceutil.Fatal("create resty output dir", err)
		}
		output = fsOutput
	}

	client, err := itax.NewClient(cfg.Portal.ClientOptions(output), tel)
	if err != nil {
		serviceutil.Fatal("init itax client", err)
	}
	scraper := itax.NewScraper(client, tel)

	mux := http.NewServeMux()
	service.NewService(scraper, tel).WithAccessToken(cfg.AccessToken).Mount(
		mux,
		connect.WithInterceptors(serviceutil.NewConnectOtelInterceptor()),
	)

	err = serviceutil.StartHttpServer(ctx, cfg.Port, mux)
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}
