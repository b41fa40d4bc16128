package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ehr/recordstore/internal/config"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/middleware"
	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recordstore",
		Short: "Clinical record storage engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(probeCmd())
	rootCmd.AddCommand(keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the health and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report the detected table, active-status column and missing columns of every entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			conn, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer conn.Close()

			failed := 0
			for _, def := range definitions(nil) {
				s, err := detect(ctx, conn, def)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%-13s ERROR %v\n", def.Entity, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-13s table=%s active=%s", def.Entity, s.Table, s.Active.Column)
				if len(s.MissingOptional) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), " missing=%s", strings.Join(s.MissingOptional, ","))
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if failed > 0 {
				return fmt.Errorf("%d entities failed detection", failed)
			}
			return nil
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print fresh random PHI key material",
		RunE: func(cmd *cobra.Command, args []string) error {
			material, err := phi.GenerateKeyMaterial()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), material)
			return nil
		},
	}
}

// newLogger builds the process logger. Console output is used in development
// or when LOG_FORMAT=console.
func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() || strings.EqualFold(cfg.LogFormat, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	metrics := telemetry.NewMetrics("recordstore")

	st, err := openStores(ctx, cfg, conn, logger, telemetry.New(metrics, tp))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open record stores")
	}
	defer st.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger, "/health", "/metrics"))
	e.Use(middleware.Actor())
	e.Use(metrics.Middleware())

	e.GET("/health", db.HealthHandler(conn))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
