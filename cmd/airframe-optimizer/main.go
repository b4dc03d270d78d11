package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/optimizer"
	"github.com/iwvelando/airframe-optimizer/internal/server"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"github.com/iwvelando/airframe-optimizer/pkg/output"
	"github.com/iwvelando/airframe-optimizer/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// Determine log level (CLI override takes precedence)
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var zapConfig zap.Config
	switch format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		zapConfig.OutputPaths = []string{loggingConfig.OutputFile}
		zapConfig.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zapConfig.Build()
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	outputPath := flag.String("output", "", "where to write the optimized airframe (default: airframe.outputPath)")
	dryRun := flag.Bool("dry-run", false, "optimize and report without writing the airframe")
	serve := flag.Bool("serve", false, "run the HTTP API instead of a single optimization")
	serverConfig := flag.String("server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	flag.Parse()

	if *serve {
		if err := runServer(*serverConfig, *logLevel); err != nil {
			fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"server failed\", \"error\": \"%v\"}\n", err)
			os.Exit(1)
		}
		return
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": \"%v\"}\n", *configLocation, err)
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": \"%v\"}\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(), zap.String("op", "main"))
	}

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := optimize(ctx, logger, conf, *outputPath, *dryRun)
	if err != nil {
		logger.Fatal("optimization failed",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	switch outputFormat {
	case constants.OutputFormatPretty:
		output.PrettyFormat(summary)
	case constants.OutputFormatCSV:
		output.CsvFormat(summary)
	case constants.OutputFormatJSON:
		if err := output.JSONFormat(summary); err != nil {
			logger.Error("failed to write JSON output",
				zap.String("op", "main"),
				zap.Error(err),
			)
		}
	}
}

// optimize runs one optimization and writes the optimized airframe unless
// dryRun is set or the run produced no result.
func optimize(ctx context.Context, logger *zap.Logger, conf *config.Configuration, outputPath string, dryRun bool) (summary optimization.Summary, err error) {
	opt, err := optimizer.FromConfig(logger, conf)
	if err != nil {
		return summary, err
	}

	summary, err = opt.Run(ctx)
	if err != nil {
		return summary, err
	}
	if dryRun || summary.State != string(optimizer.StateCompleted) {
		return summary, nil
	}

	if err := opt.Save(outputPath); err != nil {
		if errors.Is(err, optimizer.ErrNoBestResult) {
			logger.Warn("no result to save",
				zap.String("op", "main.optimize"),
			)
			return summary, nil
		}
		return summary, err
	}
	return summary, nil
}

// runServer serves the API until SIGINT or SIGTERM.
func runServer(path, logLevel string) error {
	cfg, err := server.LoadConfig(path)
	if err != nil {
		return err
	}
	logger, err := initializeLogger(cfg.Logging, logLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gCtx, logger, cfg, version)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down",
				zap.String("op", "main.runServer"),
				zap.String("signal", sig.String()),
			)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server shut down gracefully", zap.String("op", "main.runServer"))
	return nil
}
