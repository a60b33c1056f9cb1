package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/cv-tailor/internal/config"
	"github.com/jonathan/cv-tailor/internal/generation"
	"github.com/jonathan/cv-tailor/internal/server"
	"github.com/jonathan/cv-tailor/internal/server/ratelimit"
)

var (
	servePort       int
	serveUseBrowser bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes the generate and variant endpoints. Requests authenticate with a bearer token issued by "cv_agent token".`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080, or PORT)")
	serveCmd.Flags().BoolVar(&serveUseBrowser, "use-browser", false, "Render JavaScript job boards in headless Chrome when fetching contextRef")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if servePort != 0 {
		appCfg.Port = servePort
	}
	appCfg.UseBrowser = appCfg.UseBrowser || serveUseBrowser

	jwtConfig, err := config.NewJWTConfig(os.Getenv)
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	controller, err := newController(database)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:         appCfg.ListenPort(),
		WriteTimeout: writeTimeout(appCfg),
	}, server.Deps{
		Generator: controller,
		Variants:  generation.NewVariantService(database, logger),
		Tokens:    server.NewJWTService(jwtConfig),
		Health:    database,
		Limiter:   ratelimit.NewLimiter(ratelimit.LoadConfig(os.Getenv)),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}

// writeTimeout leaves room for a full dispatch plus the merge and save.
func writeTimeout(cfg config.Config) time.Duration {
	total := cfg.Timeouts().Total
	if total <= 0 {
		total = 5 * time.Minute
	}
	return total + time.Minute
}

