package domain

// SCDType selects the dimension merge strategy for a table.
type SCDType int

const (
	// SCDType1 overwrites dimension attributes in place.
	SCDType1 SCDType = 1
	// SCDType2 preserves history with valid_from/valid_to versioned rows.
	SCDType2 SCDType = 2
)

// TableConfig is the static per-logical-table ETL configuration.
type TableConfig struct {
	Name           string   `json:"name"`
	StagingTable   string   `json:"staging_table"`
	PreFactTable   string   `json:"prefact_table"`
	DimensionTable string   `json:"dimension_table"`
	FactTable      string   `json:"fact_table"`
	NaturalKey     string   `json:"natural_key"`
	SCD            SCDType  `json:"scd_type"`
	// Optional per-stage conflict keys. Empty means plain insert.
	StagingConflictKey string   `json:"staging_conflict_key,omitempty"`
	PreFactConflictKey string   `json:"prefact_conflict_key,omitempty"`
	FactConflictKey    string   `json:"fact_conflict_key,omitempty"`
	ExpectedColumns    []string `json:"expected_columns,omitempty"`
}
