package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"medallion/internal/config"
	"medallion/internal/ui"
)

var (
	initEncrypt      bool
	initCreateTables bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the pipeline configuration interactively",
	Long: `Walk through an interactive setup: warehouse connection, entity tables,
and pipeline behaviour. The result is written to ~/.medallion/config.yaml.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initEncrypt, "encrypt", true, "Encrypt the password before writing the config file")
	initCmd.Flags().BoolVar(&initCreateTables, "create-tables", false, "Create the target tables after saving")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ui.ShowLogo()

	if config.Exists() {
		overwrite, err := ui.Confirm("A configuration already exists. Overwrite it?", false)
		if err != nil {
			return err
		}
		if !overwrite {
			ui.PrintInfo("Keeping the existing configuration")
			return nil
		}
	}

	cfg, err := ui.NewConfigWizard().Run()
	if err != nil {
		ui.ShowError(err)
		return err
	}

	if err := config.Validate(cfg); err != nil {
		ui.ShowError(err)
		return err
	}

	// Hold the plaintext for table creation; the file gets the encrypted form.
	password := cfg.Snowflake.Password
	if initEncrypt {
		if err := config.EncryptConfigPasswords(cfg); err != nil {
			ui.ShowError(err)
			return err
		}
	}

	if err := config.Save(cfg); err != nil {
		ui.ShowError(err)
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Configuration written to %s", config.GetConfigFile()))

	if !initCreateTables {
		return nil
	}

	cfg.Snowflake.Password = password
	svc, err := connectService(cfg)
	if err != nil {
		ui.ShowError(err)
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	for _, entity := range cfg.Entities {
		if err := svc.EnsureTables(ctx, entity); err != nil {
			ui.ShowError(err)
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Tables ready for %s", entity.Name))
	}
	return nil
}
