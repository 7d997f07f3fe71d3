package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldsync/internal/app"
	"fieldsync/internal/config"
	"fieldsync/internal/encryption"
	"fieldsync/internal/fieldsync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from the default location.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a FieldSyncApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CapturePhoto", "SyncAll").
func newApp(ctx context.Context, operation string) (*app.FieldSyncApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewFieldSyncApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readPassphrase takes the passphrase from FIELDSYNC_PASSPHRASE, or prompts
// for it on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv(config.EnvPassphrase); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for a passphrase; set %s", config.EnvPassphrase)
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// describeError renders err with the text shown to field users when it is classified.
func describeError(err error) error {
	kind := fieldsync.KindOf(err)
	if kind == fieldsync.KindUnknown || kind == "" {
		return err
	}
	return fmt.Errorf("%s (%s)", fieldsync.UserMessage(err), kind)
}

var rootCmd = &cobra.Command{
	Use:          "fieldsync",
	Short:        "Offline-first photo and work order sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Device ID:    %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Database:     %s\n", cfg.Database.Type)
		fmt.Printf("Content:      %s\n", cfg.Content.Type)
		fmt.Printf("Storage:      %s\n", cfg.Storage.Type)
		fmt.Printf("Remote:       %s (table %s)\n", cfg.Remote.Type, cfg.Remote.Table)
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		fmt.Printf("Connectivity: %s\n", cfg.Connectivity.Type)
		fmt.Printf("Sync:         every %s, %d uploads in flight\n", cfg.Sync.Interval.Duration, cfg.Sync.UploadConcurrency)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage at-rest encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Encryption.Type != "age" {
			return fmt.Errorf("encryption type is %q; set it to \"age\" first", cfg.Encryption.Type)
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if os.Getenv(config.EnvPassphrase) == "" {
			confirm, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if confirm != pass {
				return fmt.Errorf("passphrases do not match")
			}
		}

		enc := encryption.NewAgeEncryptor(cfg.Encryption)
		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

var keysCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the passphrase unlocks the private key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc == nil || !enc.IsConfigured() {
			return fmt.Errorf("encryption keys are not set up")
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if _, err := enc.Unlock(pass); err != nil {
			return describeError(err)
		}
		fmt.Println("Passphrase OK")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  ok:%d failed:%d  %s\n",
				run.ID,
				run.Trigger,
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.Status,
				run.Success,
				run.Failed,
				duration,
			)
		}
		return nil
	},
}

// backup-db command
var backupDBCmd = &cobra.Command{
	Use:   "backup-db",
	Short: "Upload a snapshot of the local database to remote storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "BackupDatabase")
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.BackupDatabase(cmd.Context())
		if err != nil {
			return describeError(err)
		}
		fmt.Printf("Database snapshot uploaded: %s\n", url)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysCheckCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(photoCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(backupDBCmd)
}
