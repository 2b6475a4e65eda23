package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"veloviz/internal/relay"
	"veloviz/internal/strava"
	"veloviz/internal/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "veloviz-server",
		Short:   "Token exchange relay for Strava: swaps authorization codes for tokens and proxies activity reads without exposing the client secret",
		PreRunE: prepareRelayConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":3000", "HTTP listen address")
	rootCmd.Flags().String("strava_client_id", "", "Strava application client ID")
	rootCmd.Flags().String("strava_client_secret", "", "Strava application client secret; kept server-side only")
	rootCmd.Flags().String("redirect_uri", "http://localhost:5173", "Redirect URI registered with the Strava application")
	rootCmd.Flags().String("token_url", strava.DefaultTokenURL, "Strava token endpoint")
	rootCmd.Flags().String("api_base_url", strava.DefaultAPIBaseURL, "Strava API base URL")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"}, "Client origins allowed to call the relay")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("strava_client_id", rootCmd.Flags().Lookup("strava_client_id"))
	_ = viper.BindPFlag("strava_client_secret", rootCmd.Flags().Lookup("strava_client_secret"))
	_ = viper.BindPFlag("redirect_uri", rootCmd.Flags().Lookup("redirect_uri"))
	_ = viper.BindPFlag("token_url", rootCmd.Flags().Lookup("token_url"))
	_ = viper.BindPFlag("api_base_url", rootCmd.Flags().Lookup("api_base_url"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingClientID        = "config.missing_strava_client_id"
	configCodeMissingRedirectURI     = "config.missing_redirect_uri"
	configCodeMissingAllowedOrigins  = "config.missing_cors_allowed_origins"
	configCodeUninitializedRelayConf = "config.uninitialized_relay_config"
)

type contextKey string

const relayConfigContextKey contextKey = "relayConfig"

func prepareRelayConfig(command *cobra.Command, arguments []string) error {
	relayConfig, loadErr := LoadRelayConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, relayConfigContextKey, relayConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadRelayConfig reads the relay configuration from viper. A missing client
// secret is not fatal at startup: the relay still serves, and the endpoints
// that need the secret answer with a configuration error per request.
func LoadRelayConfig() (relay.Config, error) {
	clientID := viper.GetString("strava_client_id")
	if clientID == "" {
		return relay.Config{}, configError(configCodeMissingClientID, "strava_client_id must be provided")
	}

	redirectURI := viper.GetString("redirect_uri")
	if redirectURI == "" {
		return relay.Config{}, configError(configCodeMissingRedirectURI, "redirect_uri must be provided")
	}

	allowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if len(allowedOrigins) == 0 {
		return relay.Config{}, configError(configCodeMissingAllowedOrigins, "cors_allowed_origins must be provided")
	}

	return relay.Config{
		ClientID:       clientID,
		ClientSecret:   viper.GetString("strava_client_secret"),
		RedirectURI:    redirectURI,
		TokenURL:       viper.GetString("token_url"),
		APIBaseURL:     viper.GetString("api_base_url"),
		AllowedOrigins: allowedOrigins,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(relayConfigContextKey)
	}
	relayConfig, ok := contextValue.(relay.Config)
	if !ok {
		return configError(configCodeUninitializedRelayConf, "relay configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")

	if !relayConfig.SecretConfigured() {
		logger.Warn("strava client secret not configured; token endpoints will answer with configuration errors",
			zap.String("code", "config.missing_strava_client_secret"))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	corsMiddleware, corsErr := web.ConfigureCORS(logger, relayConfig.AllowedOrigins)
	if corsErr != nil {
		return corsErr
	}
	router.Use(corsMiddleware)

	provider := strava.NewClient(strava.ClientConfig{
		ClientID:     relayConfig.ClientID,
		ClientSecret: relayConfig.ClientSecret,
		RedirectURI:  relayConfig.RedirectURI,
		TokenURL:     relayConfig.TokenURL,
		APIBaseURL:   relayConfig.APIBaseURL,
	})

	metricsRecorder := relay.NewCounterMetrics()
	relay.MountRelayRoutes(router, relayConfig, provider, logger, metricsRecorder)

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
