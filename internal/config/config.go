package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"medallion/internal/common"
	"medallion/internal/credentials"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

func GetConfigPath() string {
	// Check for environment variable first
	if configPath := os.Getenv("MEDALLION_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".medallion")
}

func GetConfigFile() string {
	// Check for environment variable first
	if configFile := os.Getenv("MEDALLION_CONFIG"); configFile != "" {
		// Validate the path to prevent directory traversal
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			// Fall back to default if invalid
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads the default config file, then layers SNOWFLAKE_* and pipeline
// environment overrides on top so a scheduler can inject credentials without
// touching the file. Encrypted or keyring-referenced passwords are resolved
// to plaintext.
func Load() (*models.Config, error) {
	return LoadFrom(GetConfigFile())
}

// LoadFrom is Load against an explicit config file, for callers that
// discover the file themselves (the CLI also looks in the working
// directory). A missing file yields an empty config, not an error.
func LoadFrom(configFile string) (*models.Config, error) {
	cleanedPath, err := common.CleanPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	var config models.Config
	if _, err := os.Stat(cleanedPath); err == nil {
		data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyEnvOverrides(&config)

	if err := resolvePassword(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyEnvOverrides layers environment variables over file values. The
// environment wins: a value set there always replaces the file's.
func ApplyEnvOverrides(config *models.Config) {
	overrideString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	overrideString(&config.Snowflake.Account, "SNOWFLAKE_ACCOUNT")
	overrideString(&config.Snowflake.Username, "SNOWFLAKE_USER")
	overrideString(&config.Snowflake.Password, "SNOWFLAKE_PASSWORD")
	overrideString(&config.Snowflake.Role, "SNOWFLAKE_ROLE")
	overrideString(&config.Snowflake.Warehouse, "SNOWFLAKE_WAREHOUSE")
	overrideString(&config.Snowflake.Database, "SNOWFLAKE_DATABASE")
	overrideString(&config.Snowflake.Schema, "SNOWFLAKE_SCHEMA")
	overrideString(&config.Pipeline.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Pipeline.BatchSize = n
		}
	}
	if v := os.Getenv("MEDALLION_LOOKBACK_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Pipeline.LookbackHours = n
		}
	}
}

// resolvePassword turns stored password forms into plaintext: ENC[...] values
// decrypt locally, @credential: references come from the system vault.
func resolvePassword(config *models.Config) error {
	password := config.Snowflake.Password
	switch {
	case IsEncrypted(password):
		plain, err := DecryptPassword(password)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decrypt Snowflake password")
		}
		config.Snowflake.Password = plain

	case strings.HasPrefix(password, "@credential:"):
		vault, err := credentials.NewVault()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to open credential vault")
		}
		name := strings.TrimPrefix(password, "@credential:")
		plain, err := vault.Get(name)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to resolve credential reference").
				WithContext("credential", name)
		}
		config.Snowflake.Password = plain
	}
	return nil
}

func Save(config *models.Config) error {
	configPath := GetConfigPath()
	if err := os.MkdirAll(configPath, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(GetConfigFile(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

// Validate checks that a config is usable for warehouse runs. Required
// connection fields must be set and every entity must be internally
// consistent: tables named, a business key field, and tracked fields drawn
// from the declared field list.
func Validate(config *models.Config) error {
	if config.Snowflake.Account == "" {
		return errors.ValidationError("snowflake.account", "", "account is required")
	}
	if config.Snowflake.Username == "" {
		return errors.ValidationError("snowflake.username", "", "username is required")
	}
	if config.Snowflake.Password == "" {
		return errors.ValidationError("snowflake.password", "", "password is required")
	}
	if config.Snowflake.Database == "" {
		return errors.ValidationError("snowflake.database", "", "database is required")
	}

	if len(config.Entities) == 0 {
		return errors.ValidationError("entities", "", "at least one entity is required")
	}

	seen := make(map[string]bool)
	for i, entity := range config.Entities {
		where := fmt.Sprintf("entities[%d]", i)
		if entity.Name == "" {
			return errors.ValidationError(where+".name", "", "name is required")
		}
		if seen[entity.Name] {
			return errors.ValidationError(where+".name", entity.Name, "duplicate entity name")
		}
		seen[entity.Name] = true

		if entity.SnapshotTable == "" || entity.ConformedTable == "" || entity.LedgerTable == "" {
			return errors.ValidationError(where, entity.Name, "snapshot, conformed, and ledger tables are required")
		}
		if entity.BusinessKeyField == "" {
			return errors.ValidationError(where+".business_key_field", entity.Name, "business key field is required")
		}
		if len(entity.Fields) == 0 {
			return errors.ValidationError(where+".fields", entity.Name, "at least one field is required")
		}

		schema := entity.Schema()
		fieldSeen := make(map[string]bool)
		for _, f := range entity.Fields {
			if f.Name == "" {
				return errors.ValidationError(where+".fields", entity.Name, "field name is required")
			}
			if fieldSeen[f.Name] {
				return errors.ValidationError(where+".fields", f.Name, "duplicate field name")
			}
			fieldSeen[f.Name] = true
			if !validFieldType(f.Type) {
				return errors.ValidationError(where+".fields."+f.Name, string(f.Type), "unknown field type")
			}
		}
		for _, tracked := range entity.TrackedFields {
			if _, ok := schema.Field(tracked); !ok {
				return errors.ValidationError(where+".tracked_fields", tracked, "tracked field is not in the field list")
			}
		}
	}
	return nil
}

func validFieldType(t models.FieldType) bool {
	switch t {
	case models.FieldString, models.FieldInt, models.FieldFloat, models.FieldBool, models.FieldTime, models.FieldStringList:
		return true
	}
	return false
}
