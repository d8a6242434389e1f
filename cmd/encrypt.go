package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"medallion/internal/config"
	"medallion/internal/ui"
	"medallion/pkg/models"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt the password stored in the config file",
	Long: `Rewrite the config file with the Snowflake password encrypted. The key
comes from MEDALLION_ENCRYPTION_KEY when set, otherwise from a
machine-specific derivation, so the file only decrypts where it was
encrypted.`,
	RunE: runEncrypt,
}

func init() {
	rootCmd.AddCommand(encryptCmd)
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	if !config.Exists() {
		err := fmt.Errorf("no configuration found at %s", config.GetConfigFile())
		ui.ShowError(err)
		return err
	}

	// Read the raw file rather than config.Load so the password is not
	// decrypted or overridden from the environment first.
	data, err := os.ReadFile(config.GetConfigFile())
	if err != nil {
		ui.ShowError(err)
		return err
	}
	var cfg models.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		ui.ShowError(err)
		return err
	}

	if cfg.Snowflake.Password == "" {
		ui.PrintWarning("Config has no stored password; nothing to encrypt")
		return nil
	}
	if config.IsEncrypted(cfg.Snowflake.Password) {
		ui.PrintInfo("Password is already encrypted")
		return nil
	}

	if err := config.EncryptConfigPasswords(&cfg); err != nil {
		ui.ShowError(err)
		return err
	}
	if err := config.Save(&cfg); err != nil {
		ui.ShowError(err)
		return err
	}

	ui.PrintSuccess("Password encrypted in " + config.GetConfigFile())
	return nil
}
