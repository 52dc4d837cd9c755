package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rafaeljc/mimir/internal/literal"
)

const variantsTable = "config_variants"

// Fallback variant served to callers without an assignment.
const (
	DefaultExperimentID = "default"
	DefaultCohort       = "default"
)

// Variant mirrors a config_variants row.
type Variant struct {
	ExperimentID string          `json:"experiment_id"`
	Cohort       string          `json:"cohort"`
	ConfigData   json.RawMessage `json:"config_data"`
	Version      int             `json:"version"`
	IsActive     bool            `json:"is_active"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ActiveVariant returns the active variant for (experimentID, cohort).
func (r *Repository) ActiveVariant(ctx context.Context, experimentID, cohort string) (*Variant, error) {
	qb := r.sb.Select("experiment_id", "cohort", "config_data", "version", "is_active", "updated_at").
		From(variantsTable).
		Where(sq.Eq{"experiment_id": experimentID, "cohort": cohort, "is_active": true})

	var (
		v    Variant
		data []byte
	)
	if err := r.queryRow(ctx, qb, &v.ExperimentID, &v.Cohort, &data, &v.Version, &v.IsActive, &v.UpdatedAt); err != nil {
		return nil, fmt.Errorf("active variant %s/%s: %w", experimentID, cohort, err)
	}
	v.ConfigData = json.RawMessage(data)
	return &v, nil
}

// UpsertVariant stores data for (experimentID, cohort). An existing row gets
// its version bumped and is reactivated.
func (r *Repository) UpsertVariant(ctx context.Context, experimentID, cohort string, data json.RawMessage) (*Variant, error) {
	qb := r.sb.Insert(variantsTable).
		Columns("experiment_id", "cohort", "config_data").
		Values(experimentID, cohort, literal.Document(data)).
		Suffix("ON CONFLICT (experiment_id, cohort) DO UPDATE SET " +
			"config_data = EXCLUDED.config_data, " +
			"version = " + variantsTable + ".version + 1, " +
			"is_active = TRUE, " +
			"updated_at = now() " +
			"RETURNING version, is_active, updated_at")

	v := Variant{ExperimentID: experimentID, Cohort: cohort, ConfigData: data}
	if err := r.queryRow(ctx, qb, &v.Version, &v.IsActive, &v.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert variant %s/%s: %w", experimentID, cohort, err)
	}
	return &v, nil
}
