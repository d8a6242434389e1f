package store

import (
	"fmt"
	"strings"

	"medallion/pkg/models"
)

// Statement builders parameterized over the entity's field list. These are
// ordinary functions invoked once at service construction, not runtime string
// concatenation over user input: every value travels as a bind parameter.

// ColumnName maps a conformed field name to its warehouse column.
func ColumnName(field string) string {
	return strings.ToUpper(field)
}

func columnList(fields []string) []string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, ColumnName(f))
	}
	return cols
}

// BuildSnapshotScan selects the snapshot stream at or after a floor
// timestamp. The floor is bind parameter 1.
func BuildSnapshotScan(table string) string {
	return fmt.Sprintf(
		"SELECT BUSINESS_KEY, OBSERVED_AT, SEQ, BATCH_ID, RAW_DATA FROM %s WHERE OBSERVED_AT >= ? ORDER BY OBSERVED_AT, SEQ",
		table,
	)
}

// BuildCursorQuery computes the low-water mark over the conformed table.
func BuildCursorQuery(table string) string {
	return fmt.Sprintf("SELECT MAX(SOURCE_OBSERVED_AT) FROM %s", table)
}

// BuildRowsQuery selects the full current state with typed field columns.
func BuildRowsQuery(table string, schema models.Schema) string {
	cols := append([]string{"BUSINESS_KEY"}, columnList(schema.FieldNames())...)
	cols = append(cols, "SOURCE_OBSERVED_AT", "SOURCE_SEQ", "BATCH_ID", "LOADED_AT")
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY BUSINESS_KEY", strings.Join(cols, ", "), table)
}

// BuildConformedMerge produces the upsert statement for one conformed row:
// insert the key when unseen, overwrite every field when seen. One bind
// parameter per column in the USING clause; list-typed fields travel as JSON
// text parsed into ARRAY by the warehouse.
func BuildConformedMerge(table string, schema models.Schema) string {
	return BuildConformedMergeBatch(table, schema, 1)
}

// BuildConformedMergeBatch is BuildConformedMerge with rows source rows
// stitched into the USING clause by UNION ALL, so one warehouse round-trip
// upserts a whole batch. Source keys must be distinct; the merge engine's
// dedup guarantees that.
func BuildConformedMergeBatch(table string, schema models.Schema, rows int) string {
	cols := append([]string{"BUSINESS_KEY"}, columnList(schema.FieldNames())...)
	cols = append(cols, "SOURCE_OBSERVED_AT", "SOURCE_SEQ", "BATCH_ID", "LOADED_AT")

	selects := make([]string, 0, len(cols))
	selects = append(selects, "? AS BUSINESS_KEY")
	for _, f := range schema.Fields {
		if f.Type == models.FieldStringList {
			selects = append(selects, fmt.Sprintf("PARSE_JSON(?) AS %s", ColumnName(f.Name)))
		} else {
			selects = append(selects, fmt.Sprintf("? AS %s", ColumnName(f.Name)))
		}
	}
	for _, col := range []string{"SOURCE_OBSERVED_AT", "SOURCE_SEQ", "BATCH_ID", "LOADED_AT"} {
		selects = append(selects, fmt.Sprintf("? AS %s", col))
	}

	rowSelect := "SELECT " + strings.Join(selects, ", ")
	sourceRows := make([]string, rows)
	for i := range sourceRows {
		sourceRows[i] = rowSelect
	}

	updates := make([]string, 0, len(cols)-1)
	for _, col := range cols[1:] {
		updates = append(updates, fmt.Sprintf("target.%s = source.%s", col, col))
	}

	return strings.Join([]string{
		fmt.Sprintf("MERGE INTO %s AS target", table),
		fmt.Sprintf("USING (%s) AS source", strings.Join(sourceRows, " UNION ALL ")),
		"ON target.BUSINESS_KEY = source.BUSINESS_KEY",
		fmt.Sprintf("WHEN MATCHED THEN UPDATE SET %s", strings.Join(updates, ", ")),
		fmt.Sprintf("WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
			strings.Join(cols, ", "), "source."+strings.Join(cols, ", source.")),
	}, "\n")
}

// BuildOpenIntervals selects the current interval per business key.
func BuildOpenIntervals(table string) string {
	return fmt.Sprintf(
		"SELECT BUSINESS_KEY, ATTRIBUTES, VALID_FROM, VALID_TO FROM %s WHERE VALID_TO IS NULL",
		table,
	)
}

// BuildLedgerClose terminates a key's open interval. Parameters: valid_to,
// business key.
func BuildLedgerClose(table string) string {
	return fmt.Sprintf(
		"UPDATE %s SET VALID_TO = ? WHERE BUSINESS_KEY = ? AND VALID_TO IS NULL",
		table,
	)
}

// BuildLedgerInsert opens a new interval. The attribute tuple travels as a
// JSON string parsed into a VARIANT column. Parameters: business key,
// attributes JSON, valid_from.
func BuildLedgerInsert(table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (BUSINESS_KEY, ATTRIBUTES, VALID_FROM, VALID_TO) SELECT ?, PARSE_JSON(?), ?, NULL",
		table,
	)
}

// BuildIntervals selects a key's full history in validity order.
func BuildIntervals(table string) string {
	return fmt.Sprintf(
		"SELECT BUSINESS_KEY, ATTRIBUTES, VALID_FROM, VALID_TO FROM %s WHERE BUSINESS_KEY = ? ORDER BY VALID_FROM",
		table,
	)
}

// BuildIntervalAt resolves the point-in-time predicate: valid_from <= t and
// (valid_to is null or valid_to > t). Parameters: key, t, t.
func BuildIntervalAt(table string) string {
	return fmt.Sprintf(
		"SELECT BUSINESS_KEY, ATTRIBUTES, VALID_FROM, VALID_TO FROM %s WHERE BUSINESS_KEY = ? AND VALID_FROM <= ? AND (VALID_TO IS NULL OR VALID_TO > ?)",
		table,
	)
}

// sqlType maps a field type to its Snowflake column type.
func sqlType(ft models.FieldType) string {
	switch ft {
	case models.FieldInt:
		return "NUMBER"
	case models.FieldFloat:
		return "FLOAT"
	case models.FieldBool:
		return "BOOLEAN"
	case models.FieldTime:
		return "TIMESTAMP_NTZ"
	case models.FieldStringList:
		return "ARRAY"
	default:
		return "VARCHAR"
	}
}

// BuildConformedDDL creates the conformed table when absent. Idempotent.
func BuildConformedDDL(table string, schema models.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("    BUSINESS_KEY NUMBER NOT NULL,\n")
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "    %s %s,\n", ColumnName(f.Name), sqlType(f.Type))
	}
	b.WriteString("    SOURCE_OBSERVED_AT TIMESTAMP_NTZ NOT NULL,\n")
	b.WriteString("    SOURCE_SEQ NUMBER NOT NULL,\n")
	b.WriteString("    BATCH_ID VARCHAR(36),\n")
	b.WriteString("    LOADED_AT TIMESTAMP_NTZ NOT NULL\n")
	b.WriteString(")")
	return b.String()
}

// BuildLedgerDDL creates the ledger table when absent. Idempotent.
func BuildLedgerDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    BUSINESS_KEY NUMBER NOT NULL,
    ATTRIBUTES VARIANT NOT NULL,
    VALID_FROM TIMESTAMP_NTZ NOT NULL,
    VALID_TO TIMESTAMP_NTZ
)`, table)
}

// BuildSnapshotDDL creates the bronze snapshot table when absent. Idempotent.
func BuildSnapshotDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    BUSINESS_KEY NUMBER NOT NULL,
    OBSERVED_AT TIMESTAMP_NTZ NOT NULL,
    SEQ NUMBER NOT NULL,
    BATCH_ID VARCHAR(36),
    RAW_DATA VARIANT NOT NULL
)`, table)
}
