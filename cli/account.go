package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lingua-labs/linguaflow/api"
	"github.com/lingua-labs/linguaflow/kvstore"
	"github.com/lingua-labs/linguaflow/session"
)

const defaultServerURL = "http://127.0.0.1:3000"

// NewAccountCmd creates the "account" command group: a small client for
// the LinguaFlow API that keeps its session in a local SQLite cache,
// the same way the mobile app does.
func NewAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage a LinguaFlow account from this machine",
	}

	cmd.PersistentFlags().String("server", defaultServerURL, "LinguaFlow server base URL")
	cmd.PersistentFlags().String("cache", "", "Path to the local session cache (default: ~/.linguaflow/client.db)")

	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newPreferencesCmd())

	return cmd
}

// newAccountManager builds a session manager over the local cache and
// the remote API. The background revalidator stays off for one-shot
// commands.
func newAccountManager(cmd *cobra.Command) (*session.Manager, func(), error) {
	serverURL, _ := cmd.Flags().GetString("server")
	cachePath, _ := cmd.Flags().GetString("cache")

	if cachePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve user home: %w", err)
		}
		dir := filepath.Join(home, ".linguaflow")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create cache directory: %w", err)
		}
		cachePath = filepath.Join(dir, "client.db")
	}

	store, err := kvstore.NewSQLiteStore(kvstore.SQLiteStoreConfig{DSN: cachePath})
	if err != nil {
		return nil, nil, fmt.Errorf("opening session cache: %w", err)
	}

	client, err := api.NewClient(api.ClientConfig{BaseURL: serverURL})
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("creating API client: %w", err)
	}

	manager, err := session.NewManager(session.Config{
		Store:              store,
		Client:             client,
		RevalidateInterval: -1,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cleanup := func() {
		manager.Close()
		_ = store.Close()
	}
	return manager, cleanup, nil
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <email> <password>",
		Short: "Create a new account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newAccountManager(cmd)
			if err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			defer cleanup()

			if err := manager.Register(cmd.Context(), args[0], args[1]); err != nil {
				return exitError(exitAuth, "registration failed: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account created. Log in with: linguaflow account login")
			return nil
		},
	}
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Sign in and cache the session locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newAccountManager(cmd)
			if err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			defer cleanup()

			if err := manager.SignIn(cmd.Context(), args[0], args[1]); err != nil {
				return exitError(exitAuth, "login failed: %v", err)
			}

			snap := manager.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", snap.Session.Email)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the cached session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, cleanup, err := newAccountManager(cmd)
			if err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			defer cleanup()

			if err := manager.Initialize(cmd.Context()); err != nil {
				return exitError(exitRuntime, "restoring session: %v", err)
			}
			if err := manager.SignOut(cmd.Context()); err != nil {
				return exitError(exitAuth, "logout failed: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, cleanup, err := newAccountManager(cmd)
			if err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			defer cleanup()

			if err := manager.Initialize(cmd.Context()); err != nil {
				return exitError(exitRuntime, "restoring session: %v", err)
			}

			snap := manager.Snapshot()
			if snap.State != session.StateAuthenticated {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in (guest)")
				if snap.Preferences != (session.Preferences{}) {
					fmt.Fprintf(cmd.OutOrStdout(), "Preferences: %s -> %s\n",
						snap.Preferences.DefaultFromLang, snap.Preferences.DefaultToLang)
				}
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", snap.Session.Email, snap.Session.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "Preferences: %s -> %s\n",
				snap.Preferences.DefaultFromLang, snap.Preferences.DefaultToLang)
			return nil
		},
	}
}

func newPreferencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preferences <from-lang> <to-lang>",
		Short: "Set the default translation language pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, cleanup, err := newAccountManager(cmd)
			if err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			defer cleanup()

			if err := manager.Initialize(cmd.Context()); err != nil {
				return exitError(exitRuntime, "restoring session: %v", err)
			}

			prefs := session.Preferences{DefaultFromLang: args[0], DefaultToLang: args[1]}
			if err := manager.SetPreferences(cmd.Context(), prefs); err != nil {
				// The local write still succeeded; the remote sync failed.
				if session.IsKind(err, session.KindPreferencesSync) {
					fmt.Fprintf(cmd.OutOrStdout(), "Saved locally; sync failed: %v\n", err)
					return nil
				}
				return exitError(exitRuntime, "saving preferences: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Preferences set: %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}
