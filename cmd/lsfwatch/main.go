// Command lsfwatch watches an LSF grade portal for changes and plays a tone
// when the grade table content changes.
//
// Usage:
//
//	lsfwatch                           # configuration from env / .env
//	lsfwatch -selectors portal.yaml    # override page selectors
//
// Required environment: USERNAME_LSF, PASSWORD_LSF, LSF_LOGIN_PAGE.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lsfwatch/alert"
	"lsfwatch/browser"
	"lsfwatch/config"
	"lsfwatch/monitor"
	"lsfwatch/portal"
)

func main() {
	selectorsPath := flag.String("selectors", "", "path to a YAML selector profile")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("lsfwatch: configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	switch pick(*logLevel, cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	selectors, err := config.LoadSelectors(*selectorsPath)
	if err != nil {
		logger.Error("lsfwatch: selectors", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, selectors); err != nil {
		logger.Error("lsfwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, selectors *config.Selectors) error {
	mgr := browser.NewManager(browser.Config{
		RemoteURL: cfg.BrowserURL,
		Headless:  cfg.Headless,
		Logger:    logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	opener := portal.NewRodOpener(mgr, []string{"images", "fonts", "media"}, logger)

	gateway, err := portal.NewGateway(portal.GatewayConfig{
		Opener: opener,
		Credentials: portal.Credentials{
			Username: cfg.Username,
			Password: cfg.Password,
			LoginURL: cfg.LoginURL,
		},
		Selectors:    selectors,
		WaitTimeout:  cfg.WaitTimeout,
		LoginMaxWait: cfg.LoginMaxWait,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Config{
		Portal:        gateway,
		Alert:         alert.NewTone(cfg.SoundFrequency, cfg.SoundDuration),
		Reporter:      monitor.NewConsole(nil),
		CheckInterval: cfg.CheckInterval,
		Rebuild:       mgr.Restart,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	return mon.Run(ctx)
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
