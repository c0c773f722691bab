package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"symver/internal/app"
	"symver/internal/config"
	"symver/internal/encryption"
	"symver/internal/versioner"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// newApp reads the config and creates an SVApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "snapshot", "push").
func newApp(cmd *cobra.Command, operation string) (*app.SVApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewSVApp(cmd.Context(), cfg, operation, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:           "symver",
	Short:         "Incremental snapshots of a directory tree",
	SilenceUsage:  true,
	SilenceErrors: true,
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

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID:  %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Println(styleHeader.Render("Configuration from " + defaults["config_path"]))
		fmt.Println()
		fmt.Printf("Host ID:      %s\n", cfg.HostID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Source Root:  %s\n", cfg.SourceRoot)
		fmt.Printf("Backup Root:  %s\n", cfg.BackupRoot)
		fmt.Printf("Link Mode:    %s\n", cfg.LinkMode)
		fmt.Printf("Workers:      %d\n", cfg.Workers)
		fmt.Printf("Force:        %t\n", cfg.ForceVersionWhenEmpty)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:        %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc == nil {
			return fmt.Errorf("encryption is disabled: set [encryption] type = \"age\" first")
		}
		if enc.IsConfigured() {
			return fmt.Errorf("encryption keys already exist at %s", cfg.Encryption.PublicKeyPath)
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Take a new version of the source tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		source, _ := cmd.Flags().GetString("source")
		backup, _ := cmd.Flags().GetString("backup")

		a, err := newApp(cmd, "snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Snapshot(source, backup, force)
		if errors.Is(err, versioner.ErrNoActionTaken) {
			fmt.Println(styleWarn.Render("Nothing changed since the last version; no version created."))
			return nil
		}
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}

		fmt.Printf("Created version %s\n", styleLatest.Render(res.VersionID))
		if res.PreviousID != "" {
			fmt.Printf("Previous:  %s\n", res.PreviousID)
		}
		fmt.Printf("Copied:    %s\n", styleCopied.Render(fmt.Sprint(len(res.Copied))))
		fmt.Printf("Linked:    %s\n", styleLinked.Render(fmt.Sprint(len(res.Linked))))
		fmt.Printf("Dirs:      %d\n", len(res.Directories))
		return nil
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List versions in the backup root",
	RunE: func(cmd *cobra.Command, args []string) error {
		backup, _ := cmd.Flags().GetString("backup")

		a, err := newApp(cmd, "versions")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.Versions(backup)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("No versions yet.")
			return nil
		}

		for i, v := range versions {
			when := ""
			if t, err := versioner.ParseVersionID(v); err == nil {
				when = t.Local().Format("2006-01-02 15:04:05")
			}
			if i == len(versions)-1 {
				fmt.Printf("%s  %s  %s\n", styleLatest.Render(v), when, styleLatest.Render("[latest]"))
				continue
			}
			fmt.Printf("%s  %s\n", v, when)
		}
		return nil
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log PATH",
	Short: "View the history of a path relative to the source root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "log")
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.PathHistory(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history.")
			return nil
		}

		for _, e := range entries {
			detail := ""
			switch e.Action {
			case versioner.ActionCopy:
				detail = e.Checksum
				if len(detail) > 12 {
					detail = detail[:12]
				}
			case versioner.ActionLink:
				detail = "-> " + e.LinkVersion
			}
			mtime := ""
			if !e.ModTime.IsZero() {
				mtime = "mtime:" + e.ModTime.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %s  %8d  %-16s  %s\n",
				e.VersionID,
				actionStyle(string(e.Action)).Render(fmt.Sprintf("%-4s", e.Action)),
				e.Size,
				detail,
				mtime,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			status := op.Status
			if status == app.StatusError {
				status = styleError.Render(status)
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %-14s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				status,
				op.VersionID,
				duration,
			)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify VERSION",
	Short: "Check the stored files of a version against the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "verify")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Verify(args[0])
		if err != nil {
			return err
		}
		for _, issue := range report.Issues {
			fmt.Printf("%s  %s\n", styleError.Render(issue.RelativePath), issue.Problem)
		}
		if !report.OK() {
			return fmt.Errorf("version %s: %d of %d entries failed verification", report.VersionID, len(report.Issues), report.Checked)
		}
		fmt.Printf("Version %s OK (%d entries checked)\n", report.VersionID, report.Checked)
		return nil
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push VERSION",
	Short: "Mirror a version to the configured vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "push")
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.Push(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		copied := 0
		for _, e := range m.Entries {
			if e.Action == versioner.ActionCopy {
				copied++
			}
		}
		encrypted := ""
		if m.Encrypted {
			encrypted = " (encrypted)"
		}
		fmt.Printf("Pushed version %s: %d file(s) uploaded, %d entries in manifest%s\n",
			styleLatest.Render(m.VersionID), copied, len(m.Entries), encrypted)
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch VERSION PATH",
	Short: "Restore one file of a mirrored version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = filepath.Base(args[1])
		}

		a, err := newApp(cmd, "fetch")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}

		err = a.Fetch(cmd.Context(), args[0], args[1], f, func() (string, error) {
			return readPassphrase("Passphrase: ")
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return fmt.Errorf("fetch failed: %w", err)
		}

		fmt.Printf("Restored %s from %s to %s\n", args[1], args[0], out)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show debug logs on the console")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.Flags().BoolP("force", "f", false, "Create a version even when nothing changed")
	snapshotCmd.Flags().String("source", "", "Source root (overrides source_root)")
	snapshotCmd.Flags().String("backup", "", "Backup root (overrides backup_root)")
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.Flags().String("backup", "", "Backup root (overrides backup_root)")
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("output", "o", "", "Output file (default: base name of PATH)")
}
