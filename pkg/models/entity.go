package models

import "time"

// Snapshot is one immutable observation of an entity's full attribute set as
// delivered by the upstream source. Snapshots are append-only and never
// mutated after ingestion.
type Snapshot struct {
	BusinessKey int64                  `json:"business_key"`
	ObservedAt  time.Time              `json:"observed_at"`
	Seq         int64                  `json:"seq"` // ingestion sequence, breaks ObservedAt ties
	BatchID     string                 `json:"batch_id"`
	Payload     map[string]interface{} `json:"payload"`
}

// ConformedRow is the single current-state representation of one entity in
// typed form. Field values are normalized scalars (string, int64, float64,
// bool, time.Time, []string) or nil when the source value failed to cast.
type ConformedRow struct {
	BusinessKey      int64
	Fields           map[string]interface{}
	SourceObservedAt time.Time
	SourceSeq        int64
	BatchID          string
	LoadedAt         time.Time
}

// Field returns the typed value for a conformed field, nil when absent or
// nulled by the safe-cast policy.
func (r ConformedRow) Field(name string) interface{} {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[name]
}

// LedgerInterval is one historical version of an entity's tracked-attribute
// subset. ValidTo is nil while the version is current. For any business key
// the intervals are contiguous and non-overlapping, with at most one open.
type LedgerInterval struct {
	BusinessKey int64
	Attributes  map[string]interface{}
	ValidFrom   time.Time
	ValidTo     *time.Time
}

// Open reports whether the interval is the key's current version.
func (iv LedgerInterval) Open() bool {
	return iv.ValidTo == nil
}

// Covers reports whether t falls inside this interval's validity window.
func (iv LedgerInterval) Covers(t time.Time) bool {
	if t.Before(iv.ValidFrom) {
		return false
	}
	return iv.ValidTo == nil || iv.ValidTo.After(t)
}

// FieldType enumerates the target types a payload field can be cast to.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldInt        FieldType = "int"
	FieldFloat      FieldType = "float"
	FieldBool       FieldType = "bool"
	FieldTime       FieldType = "time"
	FieldStringList FieldType = "string_list"
)

// FieldSpec maps one payload attribute to a typed conformed column. When
// Source is empty the payload key is assumed to equal Name.
type FieldSpec struct {
	Name   string    `yaml:"name"`
	Type   FieldType `yaml:"type"`
	Source string    `yaml:"source"`
}

// SourceKey returns the payload key this field is extracted from.
func (f FieldSpec) SourceKey() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// Schema is the typed shape of one entity's conformed table.
type Schema struct {
	Entity           string
	BusinessKeyField string
	Fields           []FieldSpec
}

// Field looks up a field spec by name.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldNames returns the conformed column names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// MovieSchema is the schema shipped for the movie entity: the typed subset of
// the TMDb detail payload the warehouse conforms on every run.
func MovieSchema() Schema {
	return Schema{
		Entity:           "movies",
		BusinessKeyField: "id",
		Fields: []FieldSpec{
			{Name: "title", Type: FieldString},
			{Name: "original_language", Type: FieldString},
			{Name: "status", Type: FieldString},
			{Name: "release_date", Type: FieldTime},
			{Name: "runtime", Type: FieldInt},
			{Name: "budget", Type: FieldInt},
			{Name: "revenue", Type: FieldInt},
			{Name: "popularity", Type: FieldFloat},
			{Name: "vote_average", Type: FieldFloat},
			{Name: "vote_count", Type: FieldInt},
			{Name: "adult", Type: FieldBool},
			{Name: "genres", Type: FieldStringList},
		},
	}
}
