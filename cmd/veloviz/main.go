package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"veloviz/internal/authclient"
	"veloviz/internal/callback"
	"veloviz/internal/dataclient"
	"veloviz/internal/tokenstore"
	"veloviz/internal/view"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "veloviz",
		Short:         "View your latest Strava activity and its segment efforts from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("relay_base_url", "http://localhost:3000", "Base URL of the token exchange relay")
	rootCmd.PersistentFlags().String("strava_client_id", "168187", "Strava application client ID")
	rootCmd.PersistentFlags().String("callback_addr", "localhost:5173", "Address the login redirect listener binds to")
	rootCmd.PersistentFlags().String("token_db", defaultTokenDBPath(), "Path to the SQLite database holding the token")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log internal steps to stderr")

	_ = viper.BindPFlag("relay_base_url", rootCmd.PersistentFlags().Lookup("relay_base_url"))
	_ = viper.BindPFlag("strava_client_id", rootCmd.PersistentFlags().Lookup("strava_client_id"))
	_ = viper.BindPFlag("callback_addr", rootCmd.PersistentFlags().Lookup("callback_addr"))
	_ = viper.BindPFlag("token_db", rootCmd.PersistentFlags().Lookup("token_db"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newConnectCommand())
	rootCmd.AddCommand(newActivityCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogoutCommand())

	return rootCmd
}

type clientSettings struct {
	RelayBaseURL string
	ClientID     string
	CallbackAddr string
	RedirectURI  string
	TokenDBPath  string
	Verbose      bool
}

func loadClientSettings() clientSettings {
	callbackAddr := viper.GetString("callback_addr")
	return clientSettings{
		RelayBaseURL: viper.GetString("relay_base_url"),
		ClientID:     viper.GetString("strava_client_id"),
		CallbackAddr: callbackAddr,
		RedirectURI:  "http://" + callbackAddr,
		TokenDBPath:  viper.GetString("token_db"),
		Verbose:      viper.GetBool("verbose"),
	}
}

func defaultTokenDBPath() string {
	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		return "veloviz.db"
	}
	return filepath.Join(homeDir, ".veloviz", "tokens.db")
}

func newLogger(settings clientSettings) (*zap.Logger, error) {
	if !settings.Verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func buildAuthClient(ctx context.Context, settings clientSettings, logger *zap.Logger) (*authclient.AuthClient, error) {
	if directory := filepath.Dir(settings.TokenDBPath); directory != "." {
		if mkdirErr := os.MkdirAll(directory, 0o700); mkdirErr != nil {
			return nil, fmt.Errorf("create token directory: %w", mkdirErr)
		}
	}
	store, storeErr := tokenstore.NewDatabaseTokenStore(ctx, settings.TokenDBPath)
	if storeErr != nil {
		return nil, storeErr
	}
	return authclient.New(authclient.Config{
		ClientID:     settings.ClientID,
		RedirectURI:  settings.RedirectURI,
		RelayBaseURL: settings.RelayBaseURL,
	}, store, logger), nil
}

func newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Log in to Strava through the browser",
		RunE: func(command *cobra.Command, arguments []string) error {
			settings := loadClientSettings()
			logger, loggerErr := newLogger(settings)
			if loggerErr != nil {
				return loggerErr
			}
			defer func() { _ = logger.Sync() }()

			ctx := command.Context()
			auth, buildErr := buildAuthClient(ctx, settings, logger)
			if buildErr != nil {
				return buildErr
			}

			if auth.IsAuthenticated(ctx) {
				fmt.Fprintln(command.OutOrStdout(), "Already connected to Strava.")
				return nil
			}

			state, stateErr := callback.NewState()
			if stateErr != nil {
				return stateErr
			}
			if loginErr := auth.Login(state); loginErr != nil {
				return loginErr
			}
			fmt.Fprintln(command.OutOrStdout(), "Waiting for you to approve access in the browser...")

			query, receiveErr := callback.Receive(ctx, settings.CallbackAddr, state, logger)
			if receiveErr != nil {
				return receiveErr
			}

			model := view.NewModel(auth, logger)
			resolved, _ := model.Resolve(ctx, query)
			switch resolved {
			case view.StateAuthenticated:
				fmt.Fprintln(command.OutOrStdout(), "Connected to Strava.")
				return nil
			case view.StateError:
				return fmt.Errorf("connect failed: %s", model.ErrorMessage())
			default:
				return fmt.Errorf("connect did not complete, state %s", resolved)
			}
		},
	}
}

func newActivityCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activity",
		Short: "Show your most recent activity with its segment efforts",
		RunE: func(command *cobra.Command, arguments []string) error {
			settings := loadClientSettings()
			logger, loggerErr := newLogger(settings)
			if loggerErr != nil {
				return loggerErr
			}
			defer func() { _ = logger.Sync() }()

			ctx := command.Context()
			auth, buildErr := buildAuthClient(ctx, settings, logger)
			if buildErr != nil {
				return buildErr
			}
			data := dataclient.New(settings.RelayBaseURL, auth, logger)

			activity, fetchErr := data.GetLastActivity(ctx)
			if fetchErr != nil {
				var upstreamErr *dataclient.UpstreamError
				switch {
				case errors.Is(fetchErr, authclient.ErrNoToken):
					return errors.New("not connected to Strava; run: veloviz connect")
				case errors.As(fetchErr, &upstreamErr) && upstreamErr.AuthRejected:
					return errors.New("Strava rejected the stored credential; run: veloviz connect")
				default:
					return fetchErr
				}
			}

			view.RenderActivity(command.OutOrStdout(), activity)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a usable Strava credential is stored",
		RunE: func(command *cobra.Command, arguments []string) error {
			settings := loadClientSettings()
			logger, loggerErr := newLogger(settings)
			if loggerErr != nil {
				return loggerErr
			}
			defer func() { _ = logger.Sync() }()

			ctx := command.Context()
			auth, buildErr := buildAuthClient(ctx, settings, logger)
			if buildErr != nil {
				return buildErr
			}

			if auth.IsAuthenticated(ctx) {
				fmt.Fprintln(command.OutOrStdout(), "Connected to Strava.")
			} else {
				fmt.Fprintln(command.OutOrStdout(), "Not connected. Run: veloviz connect")
			}
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored Strava credential",
		RunE: func(command *cobra.Command, arguments []string) error {
			settings := loadClientSettings()
			logger, loggerErr := newLogger(settings)
			if loggerErr != nil {
				return loggerErr
			}
			defer func() { _ = logger.Sync() }()

			ctx := command.Context()
			auth, buildErr := buildAuthClient(ctx, settings, logger)
			if buildErr != nil {
				return buildErr
			}

			if logoutErr := auth.Logout(ctx); logoutErr != nil {
				return logoutErr
			}
			fmt.Fprintln(command.OutOrStdout(), "Disconnected from Strava.")
			return nil
		},
	}
}
