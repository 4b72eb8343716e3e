package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/auth"
	"github.com/emilythestrangee/lireddit/backend/internal/config"
	"github.com/emilythestrangee/lireddit/backend/internal/database"
	"github.com/emilythestrangee/lireddit/backend/internal/handlers"
	"github.com/emilythestrangee/lireddit/backend/internal/loaders"
	"github.com/emilythestrangee/lireddit/backend/internal/logging"
	"github.com/emilythestrangee/lireddit/backend/internal/notify"
	"github.com/emilythestrangee/lireddit/backend/internal/posts"
	"github.com/emilythestrangee/lireddit/backend/internal/server"
	"github.com/emilythestrangee/lireddit/backend/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lireddit-api",
		Short: "Lireddit backend service",
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
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (pgx, postgres, sqlite)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("vote-max-attempts", defaults.GetInt("vote.max_attempts"), "Attempts per vote before reporting a conflict")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "vote.max_attempts", "vote-max-attempts")
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

	db, err := database.NewDatabase(database.Config{
		Driver:       appConfig.DatabaseDriver,
		DSN:          appConfig.DatabaseDSN,
		MaxOpenConns: appConfig.DatabaseMaxOpenConns,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := auth.NewManager(auth.ManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if appConfig.TwilioEnabled() {
		notifier, err = notify.NewTwilioNotifier(notify.TwilioConfig{
			AccountSID: appConfig.TwilioAccountSID,
			AuthToken:  appConfig.TwilioAuthToken,
			From:       appConfig.TwilioFrom,
		}, notifier, logger)
		if err != nil {
			return err
		}
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:       db.DB,
		Notifier:       notifier,
		Logger:         logger,
		ResetTTL:       appConfig.ResetTokenTTL,
		ResetURLPrefix: appConfig.ResetURLPrefix,
	})
	if err != nil {
		return err
	}
	postService, err := posts.NewService(posts.ServiceConfig{Database: db.DB, Logger: logger})
	if err != nil {
		return err
	}
	voteEngine, err := posts.NewVoteEngine(posts.VoteEngineConfig{
		Database:    db.DB,
		MaxAttempts: appConfig.VoteMaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	loaderStore, err := loaders.NewStore(db.DB)
	if err != nil {
		return err
	}
	loaderConfig := loaders.Config{
		Wait:     appConfig.LoaderWait,
		MaxBatch: appConfig.LoaderMaxBatch,
		Logger:   logger,
	}

	handler, err := handlers.NewHandler(handlers.Dependencies{
		Users:        userService,
		Posts:        postService,
		Votes:        voteEngine,
		Sessions:     sessions,
		Cookie:       handlers.CookieConfig{Name: appConfig.CookieName, Secure: appConfig.CookieSecure},
		LoaderStore:  loaderStore,
		LoaderConfig: loaderConfig,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer, err := server.NewServer(server.Config{
		Address:     appConfig.HTTPAddress,
		CORSOrigins: appConfig.CORSOrigins,
		CookieName:  appConfig.CookieName,
	}, server.Dependencies{
		Database:     db,
		Handler:      handler,
		Sessions:     sessions,
		LoaderStore:  loaderStore,
		LoaderConfig: loaderConfig,
		Logger:       logger,
	})
	if err != nil {
		return err
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
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
