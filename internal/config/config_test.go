package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medallion/pkg/models"
)

func testConfig() *models.Config {
	return &models.Config{
		Snowflake: models.Snowflake{
			Account:   "test123.us-east-1",
			Username:  "testuser",
			Password:  "testpass",
			Role:      "ANALYTICS_ROLE",
			Warehouse: "INGEST_WH",
			Database:  "ANALYTICS",
			Schema:    "BRONZE",
		},
		Pipeline: models.Pipeline{LookbackHours: 72, BatchSize: 100, LogLevel: "INFO"},
		Entities: []models.Entity{
			{
				Name:             "movies",
				SnapshotTable:    "BRONZE.MOVIES_RAW",
				ConformedTable:   "SILVER.MOVIES",
				LedgerTable:      "SILVER.MOVIES_HISTORY",
				BusinessKeyField: "id",
				Fields: []models.FieldSpec{
					{Name: "title", Type: models.FieldString},
					{Name: "revenue", Type: models.FieldInt},
				},
				TrackedFields: []string{"title", "revenue"},
			},
		},
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("MEDALLION_CONFIG", "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".medallion"), GetConfigPath())
}

func TestGetConfigFileFromEnv(t *testing.T) {
	t.Setenv("MEDALLION_CONFIG", "/etc/medallion/pipeline.yaml")
	assert.Equal(t, "/etc/medallion/pipeline.yaml", GetConfigFile())
	assert.Equal(t, "/etc/medallion", GetConfigPath())
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDALLION_CONFIG", "")

	original := testConfig()
	require.NoError(t, Save(original))
	assert.True(t, Exists())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, original, loaded)

	// Config files carry credentials, so permissions stay tight.
	info, err := os.Stat(GetConfigFile())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDALLION_CONFIG", "")

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, &models.Config{}, loaded)
}

func TestExists(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDALLION_CONFIG", "")

	assert.False(t, Exists())

	_ = os.MkdirAll(GetConfigPath(), 0700)
	require.NoError(t, os.WriteFile(GetConfigFile(), nil, 0600))
	assert.True(t, Exists())
}

func TestSaveWithInvalidPath(t *testing.T) {
	t.Setenv("HOME", "/proc/no/such/home")
	t.Setenv("MEDALLION_CONFIG", "")

	err := Save(&models.Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create config directory")
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDALLION_CONFIG", "")
	require.NoError(t, Save(testConfig()))

	t.Setenv("SNOWFLAKE_ACCOUNT", "prod456.eu-west-1")
	t.Setenv("SNOWFLAKE_PASSWORD", "prodpass")
	t.Setenv("SNOWFLAKE_SCHEMA", "SILVER")
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("MEDALLION_LOOKBACK_HOURS", "24")

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod456.eu-west-1", loaded.Snowflake.Account)
	assert.Equal(t, "prodpass", loaded.Snowflake.Password)
	assert.Equal(t, "SILVER", loaded.Snowflake.Schema)
	assert.Equal(t, 500, loaded.Pipeline.BatchSize)
	assert.Equal(t, 24, loaded.Pipeline.LookbackHours)

	// File values survive where no override is set.
	assert.Equal(t, "testuser", loaded.Snowflake.Username)
}

func TestLoadIgnoresMalformedNumericOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDALLION_CONFIG", "")
	require.NoError(t, Save(testConfig()))

	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("MEDALLION_LOOKBACK_HOURS", "-5")

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.Pipeline.BatchSize)
	assert.Equal(t, 72, loaded.Pipeline.LookbackHours)
}

func TestLoadDecryptsPassword(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDALLION_CONFIG", "")
	t.Setenv("MEDALLION_ENCRYPTION_KEY", "unit-test-key")

	cfg := testConfig()
	encrypted, err := EncryptPassword("secret")
	require.NoError(t, err)
	require.True(t, IsEncrypted(encrypted))
	cfg.Snowflake.Password = encrypted
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", loaded.Snowflake.Password)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("MEDALLION_ENCRYPTION_KEY", "unit-test-key")

	encrypted, err := EncryptPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", encrypted)

	// Encrypting an already encrypted value is a no-op.
	twice, err := EncryptPassword(encrypted)
	require.NoError(t, err)
	assert.Equal(t, encrypted, twice)

	decrypted, err := DecryptPassword(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", decrypted)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(testConfig()))
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Config)
	}{
		{"missing account", func(c *models.Config) { c.Snowflake.Account = "" }},
		{"missing password", func(c *models.Config) { c.Snowflake.Password = "" }},
		{"missing database", func(c *models.Config) { c.Snowflake.Database = "" }},
		{"no entities", func(c *models.Config) { c.Entities = nil }},
		{"entity without name", func(c *models.Config) { c.Entities[0].Name = "" }},
		{"entity without ledger table", func(c *models.Config) { c.Entities[0].LedgerTable = "" }},
		{"entity without key field", func(c *models.Config) { c.Entities[0].BusinessKeyField = "" }},
		{"entity without fields", func(c *models.Config) { c.Entities[0].Fields = nil }},
		{"unknown field type", func(c *models.Config) { c.Entities[0].Fields[0].Type = "decimal" }},
		{"tracked field not declared", func(c *models.Config) { c.Entities[0].TrackedFields = []string{"nope"} }},
		{"duplicate entity", func(c *models.Config) { c.Entities = append(c.Entities, c.Entities[0]) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
