package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestConfigMarshalUnmarshal(t *testing.T) {
	config := Config{
		Snowflake: Snowflake{
			Account:   "xy12345.us-east-1",
			Username:  "pipeline_user",
			Password:  "encrypted_password",
			Role:      "DE_ROLE",
			Warehouse: "INGEST_WH",
			Database:  "LECTURE_DE",
			Schema:    "BRONZE",
		},
		Pipeline: Pipeline{
			LookbackHours: 96,
			BatchSize:     100,
			LogLevel:      "info",
		},
		Entities: []Entity{
			{
				Name:             "movies",
				SnapshotTable:    "BRONZE.RAW_MOVIES",
				ConformedTable:   "SILVER.MOVIES",
				LedgerTable:      "SILVER.MOVIES_HISTORY",
				BusinessKeyField: "id",
				TrackedFields:    []string{"revenue", "status", "vote_average"},
			},
		},
	}

	data, err := yaml.Marshal(&config)
	assert.NoError(t, err)
	assert.NotEmpty(t, data)

	var unmarshaled Config
	err = yaml.Unmarshal(data, &unmarshaled)
	assert.NoError(t, err)

	assert.Equal(t, config.Snowflake.Account, unmarshaled.Snowflake.Account)
	assert.Equal(t, config.Pipeline.LookbackHours, unmarshaled.Pipeline.LookbackHours)
	assert.Equal(t, config.Entities[0].SnapshotTable, unmarshaled.Entities[0].SnapshotTable)
	assert.Equal(t, config.Entities[0].TrackedFields, unmarshaled.Entities[0].TrackedFields)
}

func TestEntityLookback(t *testing.T) {
	defaults := Pipeline{LookbackHours: 96}

	tests := []struct {
		name     string
		entity   Entity
		expected time.Duration
	}{
		{
			name:     "entity override wins",
			entity:   Entity{LookbackHours: 24},
			expected: 24 * time.Hour,
		},
		{
			name:     "pipeline default",
			entity:   Entity{},
			expected: 96 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.entity.Lookback(defaults))
		})
	}
}

func TestEntityLookbackBuiltinDefault(t *testing.T) {
	entity := Entity{}
	assert.Equal(t, 72*time.Hour, entity.Lookback(Pipeline{}))
}

func TestMovieSchema(t *testing.T) {
	schema := MovieSchema()

	assert.Equal(t, "movies", schema.Entity)
	assert.Equal(t, "id", schema.BusinessKeyField)
	assert.Contains(t, schema.FieldNames(), "revenue")
	assert.Contains(t, schema.FieldNames(), "genres")

	for _, f := range schema.Fields {
		assert.Equal(t, f.Name, f.SourceKey())
	}
}

func TestLedgerIntervalCovers(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	closed := LedgerInterval{BusinessKey: 1, ValidFrom: from, ValidTo: &to}
	open := LedgerInterval{BusinessKey: 1, ValidFrom: to}

	assert.False(t, closed.Covers(from.Add(-time.Second)))
	assert.True(t, closed.Covers(from))
	assert.True(t, closed.Covers(to.Add(-time.Second)))
	assert.False(t, closed.Covers(to), "valid_to is exclusive")

	assert.True(t, open.Open())
	assert.True(t, open.Covers(to))
	assert.True(t, open.Covers(to.Add(1000*time.Hour)))
}
