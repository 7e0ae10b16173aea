package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skeinsocial/skein/backend/internal/config"
	"github.com/skeinsocial/skein/backend/internal/database"
	"github.com/skeinsocial/skein/backend/internal/ingest"
	"github.com/skeinsocial/skein/backend/internal/logging"
	"github.com/skeinsocial/skein/backend/internal/moderation"
	"github.com/skeinsocial/skein/backend/internal/server"
	"github.com/skeinsocial/skein/backend/internal/threads"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "skein-api",
		Short: "Skein thread engine backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("page-size", defaults.GetInt("thread.page_size"), "Visible replies per thread page")
	cmd.PersistentFlags().Int64("merge-window-ms", defaults.GetInt64("thread.merge_window_ms"), "Self-thread merge window in milliseconds")
	cmd.PersistentFlags().Float64("trust-threshold", defaults.GetFloat64("thread.trust_threshold"), "Minimum author trust score for visibility")
	cmd.PersistentFlags().Int("ancestor-depth", defaults.GetInt("thread.ancestor_depth"), "Quoted-parent traversal depth cap")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "thread.page_size", "page-size")
	bindFlag(cmd, "thread.merge_window_ms", "merge-window-ms")
	bindFlag(cmd, "thread.trust_threshold", "trust-threshold")
	bindFlag(cmd, "thread.ancestor_depth", "ancestor-depth")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := threads.NewSQLStore(db)
	if err != nil {
		return err
	}

	threadService, err := threads.NewService(threads.ServiceConfig{
		Store: store,
		Options: threads.Options{
			MergeWindowMS:  appConfig.MergeWindowMS,
			PageSize:       appConfig.PageSize,
			TrustThreshold: appConfig.TrustThreshold,
			AncestorDepth:  appConfig.AncestorDepth,
		},
		Clock:  time.Now,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	moderationService, err := moderation.NewService(moderation.ServiceConfig{
		Database:   db,
		Store:      store,
		Engine:     threadService,
		Clock:      time.Now,
		IDProvider: moderation.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ingestService, err := ingest.NewService(ingest.ServiceConfig{
		Store:  store,
		Engine: threadService,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Threads:    threadService,
		Moderation: moderationService,
		Ingest:     ingestService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
