package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/streamnight/nextup/internal/auth"
	"github.com/streamnight/nextup/internal/catalog"
	"github.com/streamnight/nextup/internal/config"
	"github.com/streamnight/nextup/internal/database"
	"github.com/streamnight/nextup/internal/giveaway"
	"github.com/streamnight/nextup/internal/ledger"
	"github.com/streamnight/nextup/internal/logging"
	"github.com/streamnight/nextup/internal/media"
	"github.com/streamnight/nextup/internal/server"
	"github.com/streamnight/nextup/internal/users"
	"github.com/streamnight/nextup/internal/vote"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nextup-api",
		Short: "NextUp channel companion backend service",
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
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma-separated CORS origins")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("media.dir"), "Directory for uploaded media assets")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Backend session token TTL in minutes")
	cmd.PersistentFlags().Int64("super-vote-cost", defaults.GetInt64("vote.super_vote_cost"), "Point cost of a super vote (0 disables)")
	cmd.PersistentFlags().String("twitch-client-id", defaults.GetString("twitch.client_id"), "Twitch OAuth client ID")
	cmd.PersistentFlags().String("twitch-broadcaster-id", defaults.GetString("twitch.broadcaster_id"), "Twitch user id granted admin on first sign-in")
	cmd.PersistentFlags().String("ledger-channel-id", defaults.GetString("ledger.channel_id"), "Points ledger channel ID")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "media.dir", "media-dir")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "vote.super_vote_cost", "super-vote-cost")
	bindFlag(cmd, "twitch.client_id", "twitch-client-id")
	bindFlag(cmd, "twitch.broadcaster_id", "twitch-broadcaster-id")
	bindFlag(cmd, "ledger.channel_id", "ledger-channel-id")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
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

	sessionIssuer := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "nextup-auth",
		Audience:      "nextup-api",
		TokenTTL:      appConfig.SessionTTL,
	})

	twitchClient, err := auth.NewTwitchClient(auth.TwitchClientConfig{
		ClientID:     appConfig.Twitch.ClientID,
		ClientSecret: appConfig.Twitch.ClientSecret,
		RedirectURI:  appConfig.Twitch.RedirectURI,
		ValidateURL:  appConfig.Twitch.ValidateURL,
		TokenURL:     appConfig.Twitch.TokenURL,
		UserInfoURL:  appConfig.Twitch.UserInfoURL,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	ledgerClient, err := ledger.NewClient(ledger.ClientConfig{
		BaseURL:   appConfig.Ledger.BaseURL,
		ChannelID: appConfig.Ledger.ChannelID,
		JWTToken:  appConfig.Ledger.JWTToken,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	mediaStore, err := media.NewStore(media.StoreConfig{
		Root:   appConfig.MediaDir,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database:      db,
		BroadcasterID: appConfig.Twitch.BroadcasterID,
		Clock:         time.Now,
	})
	if err != nil {
		return err
	}

	resolver, err := auth.NewResolver(auth.ResolverConfig{
		Sessions: sessionIssuer,
		Identity: twitchClient,
		Accounts: usersService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	metadataClient, err := catalog.NewMetadataClient(catalog.MetadataClientConfig{
		APIURL: appConfig.SteamAPIURL,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	voteService, err := vote.NewService(vote.ServiceConfig{
		Database:      db,
		Ledger:        ledgerClient,
		Assets:        mediaStore,
		SuperVoteCost: appConfig.SuperVoteCost,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	giveawayService, err := giveaway.NewService(giveaway.ServiceConfig{
		Database: db,
		Ledger:   ledgerClient,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:        resolver,
		Twitch:          twitchClient,
		Sessions:        sessionIssuer,
		UsersService:    usersService,
		CatalogService:  catalogService,
		Metadata:        metadataClient,
		VoteService:     voteService,
		GiveawayService: giveawayService,
		Media:           mediaStore,
		AllowedOrigins:  appConfig.AllowedOrigins,
		Logger:          logger,
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
