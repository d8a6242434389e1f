package models

import "time"

type Config struct {
	Snowflake Snowflake `yaml:"snowflake"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Entities  []Entity  `yaml:"entities"`
}

type Snowflake struct {
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
}

// Pipeline contains run-level behaviour shared by all entities
type Pipeline struct {
	LookbackHours int    `yaml:"lookback_hours"` // late-arrival buffer subtracted from the cursor
	BatchSize     int    `yaml:"batch_size"`     // rows per warehouse round-trip
	LogLevel      string `yaml:"log_level"`
}

// Entity configures one tracked business-entity type: where its tables live,
// which payload field identifies it, and which attributes are history-tracked.
type Entity struct {
	Name                  string      `yaml:"name"`
	SnapshotTable         string      `yaml:"snapshot_table"`
	ConformedTable        string      `yaml:"conformed_table"`
	LedgerTable           string      `yaml:"ledger_table"`
	BusinessKeyField      string      `yaml:"business_key_field"`
	Fields                []FieldSpec `yaml:"fields"`
	TrackedFields         []string    `yaml:"tracked_fields"`
	InvalidateHardDeletes bool        `yaml:"invalidate_hard_deletes"`
	LookbackHours         int         `yaml:"lookback_hours"` // overrides Pipeline.LookbackHours when set
}

// Lookback resolves the effective late-arrival window for this entity.
func (e Entity) Lookback(defaults Pipeline) time.Duration {
	hours := e.LookbackHours
	if hours == 0 {
		hours = defaults.LookbackHours
	}
	if hours == 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// Schema returns the conformed-table schema configured for this entity.
func (e Entity) Schema() Schema {
	return Schema{Entity: e.Name, BusinessKeyField: e.BusinessKeyField, Fields: e.Fields}
}
