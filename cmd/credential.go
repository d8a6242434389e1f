package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"medallion/internal/credentials"
	"medallion/internal/ui"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets referenced by the configuration",
	Long: `Store and retrieve secrets outside the config file. A stored secret is
referenced from the configuration as "@credential:<name>" and resolved at
load time, from the OS keyring where available and from an encrypted file
vault otherwise.`,
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a secret under a name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := credentials.NewVault()
		if err != nil {
			ui.ShowError(err)
			return err
		}

		value, err := ui.Password(fmt.Sprintf("Value for %s:", args[0]), "The secret is never echoed or written in plaintext")
		if err != nil {
			return err
		}

		if err := vault.Set(args[0], value); err != nil {
			ui.ShowError(err)
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Stored credential %q. Reference it as @credential:%s", args[0], args[0]))
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := credentials.NewVault()
		if err != nil {
			ui.ShowError(err)
			return err
		}
		if err := vault.Delete(args[0]); err != nil {
			ui.ShowError(err)
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Deleted credential %q", args[0]))
		return nil
	},
}

var credentialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secrets in the file vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := credentials.NewVault()
		if err != nil {
			ui.ShowError(err)
			return err
		}
		names, err := vault.List()
		if err != nil {
			ui.ShowError(err)
			return err
		}
		if len(names) == 0 {
			ui.PrintInfo("No credentials in the file vault (keyring entries are not listable)")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd, credentialListCmd)
	rootCmd.AddCommand(credentialCmd)
}
