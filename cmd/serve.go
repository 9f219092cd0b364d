package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/lookalike/internal/config"
	"github.com/kozaktomas/lookalike/internal/embedding"
	"github.com/kozaktomas/lookalike/internal/web"
	"github.com/kozaktomas/lookalike/internal/web/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lookup web server",
	Long: `Start the Lookalike web server.

The server starts answering health checks immediately and loads the vector
index and face metadata in the background. Lookup endpoints return 503 until
both are loaded and cross-checked. A load failure stops the server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies explicitly set flags over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	resolveServeHostPort(cmd, cfg)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.SecretAPIKey == "" {
		logger.Warn("SECRET_API_KEY is not set, lookup endpoints accept any X-Key")
	}

	server := web.NewServer(cfg, embedding.NewClient(cfg.Embedding.URL), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		data, err := loadLookupData(gctx, cfg, logger)
		if err != nil && ctx.Err() != nil {
			return nil // interrupted while loading
		}
		if err != nil {
			logger.Error("startup failed", zap.Error(err))
			return fmt.Errorf("loading lookup data: %w", err)
		}
		server.SetReady(&handlers.Backend{
			Matcher:  data.pipeline,
			Searcher: data.store,
			Faces:    data.index.Len(),
		})
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	fmt.Printf("Starting Lookalike on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	return g.Wait()
}
