package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-merge/config"
	"github.com/dhcgn/mail-merge/runner"
	"github.com/dhcgn/mail-merge/store"
)

var testCmd = &cobra.Command{
	Use:   "test [address]",
	Short: "Send the personalized template for the first valid contact to one address",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to := ""
		if len(args) == 1 {
			to = args[0]
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			err := a.runner().TestSend(ctx, to)
			if errors.Is(err, runner.ErrCancelled) {
				pterm.Warning.Println("Test email cancelled.")
				return nil
			}
			return err
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the template against the tag vocabulary and the first valid contact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.runner().Validate(ctx)
			if err != nil {
				return err
			}
			if res.HasWarnings() {
				pterm.Warning.Println(res.WarningMessage())
			}
			if !res.Valid() {
				pterm.Error.Println(res.ErrorMessage())
				return fmt.Errorf("template has %d errors", len(res.Errors))
			}
			pterm.Success.Println("Template is valid.")
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every status so the next run sends to all contacts again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			err := a.runner().Reset(ctx)
			if errors.Is(err, runner.ErrCancelled) {
				pterm.Warning.Println("Reset cancelled.")
				return nil
			}
			if err == nil {
				pterm.Success.Println("All statuses cleared.")
			}
			return err
		})
	},
}

var (
	importReplace  bool
	importTemplate string
)

var importCmd = &cobra.Command{
	Use:   "import [contacts.csv]",
	Short: "Load contacts from CSV and a template from YAML into the sqlite store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && importTemplate == "" {
			return fmt.Errorf("nothing to import: pass a CSV file or --template")
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			db, ok := a.store.(*store.SQLite)
			if !ok {
				return fmt.Errorf("import needs --store %s", config.StoreSQLite)
			}

			if len(args) == 1 {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open csv: %w", err)
				}
				defer file.Close()

				n, err := db.ImportCSV(ctx, file, importReplace)
				if err != nil {
					return err
				}
				a.logger.Info("contacts imported", "file", args[0], "rows", n, "replace", importReplace)
				pterm.Success.Printf("Imported %d contacts.\n", n)
			}

			if importTemplate != "" {
				sheet, err := store.YAMLTemplate{Path: importTemplate}.TemplateSheet(ctx)
				if err != nil {
					return err
				}
				if err := db.SaveTemplate(ctx, sheet); err != nil {
					return err
				}
				pterm.Success.Printf("Imported template from %s.\n", importTemplate)
			}
			return nil
		})
	},
}

var secretCmd = &cobra.Command{
	Use:       "secret [set|delete] [imap|smtp] [user]",
	Short:     "Store or remove an IMAP or SMTP password in the system keyring",
	Args:      cobra.ExactArgs(3),
	ValidArgs: []string{"set", "delete"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, kind, user := args[0], args[1], args[2]

		var key string
		switch kind {
		case "imap":
			key = config.KeyIMAP(user)
		case "smtp":
			key = config.KeySMTP(user)
		default:
			return fmt.Errorf("unknown account kind %q, want imap or smtp", kind)
		}

		switch action {
		case "set":
			pass, err := pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password for " + key)
			if err != nil {
				return err
			}
			if err := config.SetSecret(key, pass); err != nil {
				return err
			}
			pterm.Success.Printf("Stored %s in the keyring.\n", key)
		case "delete":
			if err := config.DeleteSecret(key); err != nil {
				return err
			}
			pterm.Success.Printf("Removed %s from the keyring.\n", key)
		default:
			return fmt.Errorf("unknown action %q, want set or delete", action)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Drop existing contacts before importing")
	importCmd.Flags().StringVar(&importTemplate, "template", "", "YAML template configuration to store")

	rootCmd.AddCommand(testCmd, validateCmd, resetCmd, importCmd, secretCmd)
}
