package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"medallion/pkg/models"
)

// ConfigWizard provides an interactive configuration setup
type ConfigWizard struct {
	currentStep int
	totalSteps  int
}

// NewConfigWizard creates a new configuration wizard
func NewConfigWizard() *ConfigWizard {
	return &ConfigWizard{
		currentStep: 1,
		totalSteps:  4,
	}
}

// Run executes the configuration wizard
func (w *ConfigWizard) Run() (*models.Config, error) {
	ShowHeader("Medallion - Pipeline Setup")

	config := &models.Config{}

	// Step 1: Warehouse connection
	if err := w.configureConnectionStep(config); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 2: Entity tables
	if err := w.configureEntityStep(config); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 3: Pipeline behaviour
	if err := w.configurePipelineStep(config); err != nil {
		if err == terminal.InterruptErr {
			return nil, fmt.Errorf("configuration cancelled")
		}
		return nil, err
	}

	// Step 4: Review and confirm
	if err := w.reviewConfiguration(config); err != nil {
		return nil, err
	}

	return config, nil
}

func (w *ConfigWizard) configureConnectionStep(config *models.Config) error {
	w.showProgress("Warehouse Connection")

	questions := []*survey.Question{
		{
			Name: "account",
			Prompt: &survey.Input{
				Message: "Snowflake Account:",
				Help:    "Your Snowflake account identifier (e.g., xy12345.us-east-1)",
			},
			Validate: survey.Required,
		},
		{
			Name: "username",
			Prompt: &survey.Input{
				Message: "Username:",
				Help:    "Your Snowflake username",
			},
			Validate: survey.Required,
		},
		{
			Name: "password",
			Prompt: &survey.Password{
				Message: "Password:",
				Help:    "Your Snowflake password (will be stored securely)",
			},
			Validate: survey.Required,
		},
		{
			Name: "database",
			Prompt: &survey.Input{
				Message: "Database:",
				Default: "ANALYTICS",
				Help:    "Database holding the bronze, silver, and gold schemas",
			},
			Validate: survey.Required,
		},
		{
			Name: "schema",
			Prompt: &survey.Input{
				Message: "Default Schema:",
				Default: "BRONZE",
				Help:    "Schema used when a table name carries no schema prefix",
			},
			Validate: survey.Required,
		},
		{
			Name: "warehouse",
			Prompt: &survey.Input{
				Message: "Warehouse:",
				Default: "INGEST_WH",
				Help:    "Warehouse to use for pipeline runs",
			},
			Validate: survey.Required,
		},
		{
			Name: "role",
			Prompt: &survey.Input{
				Message: "Role:",
				Default: "ANALYTICS_ROLE",
				Help:    "Role to use for pipeline runs",
			},
			Validate: survey.Required,
		},
	}

	answers := struct {
		Account   string
		Username  string
		Password  string
		Database  string
		Schema    string
		Warehouse string
		Role      string
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	config.Snowflake = models.Snowflake{
		Account:   answers.Account,
		Username:  answers.Username,
		Password:  answers.Password,
		Database:  answers.Database,
		Schema:    answers.Schema,
		Warehouse: answers.Warehouse,
		Role:      answers.Role,
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureEntityStep(config *models.Config) error {
	w.showProgress("Entity Tables")

	questions := []*survey.Question{
		{
			Name: "name",
			Prompt: &survey.Input{
				Message: "Entity Name:",
				Default: "movies",
				Help:    "Logical name of the tracked business entity",
			},
			Validate: survey.Required,
		},
		{
			Name: "snapshotTable",
			Prompt: &survey.Input{
				Message: "Snapshot Table:",
				Default: "BRONZE.MOVIES_RAW",
				Help:    "Append-only table of raw source observations",
			},
			Validate: survey.Required,
		},
		{
			Name: "conformedTable",
			Prompt: &survey.Input{
				Message: "Conformed Table:",
				Default: "SILVER.MOVIES",
				Help:    "One row per business key, kept current by merge runs",
			},
			Validate: survey.Required,
		},
		{
			Name: "ledgerTable",
			Prompt: &survey.Input{
				Message: "History Table:",
				Default: "SILVER.MOVIES_HISTORY",
				Help:    "Validity-interval history of tracked attributes",
			},
			Validate: survey.Required,
		},
		{
			Name: "hardDeletes",
			Prompt: &survey.Confirm{
				Message: "Close history for keys that disappear upstream?",
				Default: false,
				Help:    "When enabled, a key missing from the conformed table gets its open interval closed",
			},
		},
	}

	answers := struct {
		Name           string
		SnapshotTable  string
		ConformedTable string
		LedgerTable    string
		HardDeletes    bool
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	schema := models.MovieSchema()
	config.Entities = []models.Entity{{
		Name:                  answers.Name,
		SnapshotTable:         answers.SnapshotTable,
		ConformedTable:        answers.ConformedTable,
		LedgerTable:           answers.LedgerTable,
		BusinessKeyField:      schema.BusinessKeyField,
		Fields:                schema.Fields,
		TrackedFields:         []string{"title", "status", "revenue", "budget", "runtime"},
		InvalidateHardDeletes: answers.HardDeletes,
	}}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configurePipelineStep(config *models.Config) error {
	w.showProgress("Pipeline Behaviour")

	questions := []*survey.Question{
		{
			Name: "lookbackHours",
			Prompt: &survey.Input{
				Message: "Lookback Window (hours):",
				Default: "72",
				Help:    "Late-arrival buffer re-scanned below the cursor on every run",
			},
			Validate: func(val interface{}) error {
				s, _ := val.(string)
				if _, err := strconv.Atoi(s); err != nil {
					return fmt.Errorf("must be a whole number of hours")
				}
				return nil
			},
		},
		{
			Name: "batchSize",
			Prompt: &survey.Input{
				Message: "Batch Size:",
				Default: "100",
				Help:    "Rows per warehouse round-trip",
			},
		},
		{
			Name: "logLevel",
			Prompt: &survey.Select{
				Message: "Log Level:",
				Options: []string{"debug", "info", "warn", "error"},
				Default: "info",
				Help:    "Logging verbosity level",
			},
		},
	}

	answers := struct {
		LookbackHours string
		BatchSize     string
		LogLevel      string
	}{}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	lookback, _ := strconv.Atoi(answers.LookbackHours)
	batch, _ := strconv.Atoi(answers.BatchSize)
	config.Pipeline = models.Pipeline{
		LookbackHours: lookback,
		BatchSize:     batch,
		LogLevel:      answers.LogLevel,
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) reviewConfiguration(config *models.Config) error {
	w.showProgress("Review Configuration")

	fmt.Println("\n" + ColorInfo("Configuration Summary:"))
	fmt.Println(strings.Repeat("─", 50))

	fmt.Println(ColorBold("\nSnowflake Settings:"))
	fmt.Printf("  Account:   %s\n", config.Snowflake.Account)
	fmt.Printf("  Username:  %s\n", config.Snowflake.Username)
	fmt.Printf("  Database:  %s\n", config.Snowflake.Database)
	fmt.Printf("  Warehouse: %s\n", config.Snowflake.Warehouse)
	fmt.Printf("  Role:      %s\n", config.Snowflake.Role)

	fmt.Println(ColorBold("\nEntities:"))
	for _, entity := range config.Entities {
		fmt.Printf("  %s: %s -> %s -> %s\n",
			entity.Name, entity.SnapshotTable, entity.ConformedTable, entity.LedgerTable)
	}

	fmt.Println(ColorBold("\nPipeline:"))
	fmt.Printf("  Lookback:  %dh\n", config.Pipeline.LookbackHours)
	fmt.Printf("  Log Level: %s\n", config.Pipeline.LogLevel)

	fmt.Println(strings.Repeat("─", 50))

	confirm := false
	prompt := &survey.Confirm{
		Message: "Save this configuration?",
		Default: true,
	}

	if err := survey.AskOne(prompt, &confirm); err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("configuration cancelled")
	}

	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Printf("\n%s [Step %d/%d] %s\n\n",
		ColorProgress("►"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}
