package tables

import (
	"fmt"
	"strings"

	"github.com/aircover/claimpipe/internal/domain"
)

// Router resolves a logical table name to its ETL configuration. Absence of
// explicit configuration is not an error; the naming convention fills in a
// default SCD type 1 config.
type Router struct {
	configs map[string]domain.TableConfig
}

// NewRouter builds a router over the given static configs. Nil is accepted
// and resolves everything by convention.
func NewRouter(configs map[string]domain.TableConfig) *Router {
	if configs == nil {
		configs = map[string]domain.TableConfig{}
	}
	return &Router{configs: configs}
}

// Resolve returns the ETL configuration for a table name. Unset fields of an
// explicit config are filled from the naming convention, so a partial entry
// only has to state what it overrides.
func (r *Router) Resolve(name string) domain.TableConfig {
	name = normalize(name)
	def := defaultConfig(name)

	cfg, ok := r.configs[name]
	if !ok {
		return def
	}

	cfg.Name = name
	if cfg.StagingTable == "" {
		cfg.StagingTable = def.StagingTable
	}
	if cfg.PreFactTable == "" {
		cfg.PreFactTable = def.PreFactTable
	}
	if cfg.DimensionTable == "" {
		cfg.DimensionTable = def.DimensionTable
	}
	if cfg.FactTable == "" {
		cfg.FactTable = def.FactTable
	}
	if cfg.NaturalKey == "" {
		cfg.NaturalKey = def.NaturalKey
	}
	if cfg.SCD != domain.SCDType1 && cfg.SCD != domain.SCDType2 {
		cfg.SCD = domain.SCDType1
	}
	return cfg
}

func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}

func defaultConfig(name string) domain.TableConfig {
	return domain.TableConfig{
		Name:           name,
		StagingTable:   fmt.Sprintf("staging_%s", name),
		PreFactTable:   fmt.Sprintf("prefact_%s", name),
		DimensionTable: fmt.Sprintf("dim_%s", name),
		FactTable:      fmt.Sprintf("fact_%s", name),
		NaturalKey:     "id",
		SCD:            domain.SCDType1,
	}
}

// Defaults returns the built-in configs for the known claim-warehouse tables.
// Natural keys follow the dedup key candidates the transform stage uses.
func Defaults() map[string]domain.TableConfig {
	return map[string]domain.TableConfig{
		"airlines": {
			NaturalKey:         "airline_code",
			SCD:                domain.SCDType1,
			StagingConflictKey: "airline_code",
			ExpectedColumns:    []string{"airline_code", "airline_name"},
		},
		"airports": {
			NaturalKey:         "airport_code",
			SCD:                domain.SCDType1,
			StagingConflictKey: "airport_code",
			ExpectedColumns:    []string{"airport_code", "airport_name"},
		},
		"flights": {
			NaturalKey:      "flight_key",
			SCD:             domain.SCDType2,
			ExpectedColumns: []string{"flight_number", "scheduled_departure", "actual_departure"},
		},
		"passengers": {
			NaturalKey:      "passenger_id",
			SCD:             domain.SCDType2,
			ExpectedColumns: []string{"passenger_id", "first_name", "last_name"},
		},
		"booking_sales": {
			NaturalKey:         "booking_reference",
			SCD:                domain.SCDType1,
			StagingConflictKey: "booking_reference",
			FactConflictKey:    "booking_reference",
		},
	}
}
