package observation

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/domain/encounter"
	"github.com/emr/fhir2/internal/domain/patient"
	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"code":           {Type: fhir.SearchParamToken, Column: "code_value", SysColumn: "code_system"},
	"category":       {Type: fhir.SearchParamToken, Column: "category_code"},
	"status":         {Type: fhir.SearchParamToken, Column: "status"},
	"date":           {Type: fhir.SearchParamDate, Column: "effective_datetime"},
	"value-quantity": {Type: fhir.SearchParamQuantity, Column: "value_quantity", SysColumn: "value_unit"},
	"value-string":   {Type: fhir.SearchParamString, Column: "value_string"},
	"value-concept":  {Type: fhir.SearchParamToken, Column: "value_code", SysColumn: "value_code_system"},
	"subject":        {Type: fhir.SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"patient":        {Type: fhir.SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"encounter":      {Type: fhir.SearchParamReference, Column: "encounter_id", TargetTable: "encounter"},
})

var Chains = newChains()

func newChains() *fhir.ChainRegistry {
	chains := fhir.NewChainRegistry()
	patientTarget := fhir.ChainTarget{
		ResourceType:    patient.ResourceType,
		ReferenceColumn: "patient_id",
		TargetTable:     "patient",
		Params:          patient.SearchParams,
	}
	chains.Register("subject", patientTarget)
	chains.Register("patient", patientTarget)
	chains.Register("encounter", fhir.ChainTarget{
		ResourceType:    encounter.ResourceType,
		ReferenceColumn: "encounter_id",
		TargetTable:     "encounter",
		Params:          encounter.SearchParams,
		Chains:          encounter.Chains,
	})
	return chains
}

const defaultOrder = "effective_datetime DESC NULLS LAST, id ASC"

const observationCols = `id, fhir_id, status, category_code, code_system, code_value, code_display,
	patient_id, encounter_id, effective_datetime, value_quantity, value_unit, value_string,
	value_code, value_code_system, interpretation, note,
	version_id, voided, date_voided, created_at, updated_at`

const encounterStartCol = `(SELECT enc.period_start FROM encounter enc WHERE enc.id = observation.encounter_id) AS encounter_start`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, o *Observation) error {
	o.ID = uuid.New()
	o.FHIRID = o.ID.String()
	o.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO observation (id, fhir_id, status, category_code, code_system, code_value, code_display,
			patient_id, encounter_id, effective_datetime, value_quantity, value_unit, value_string,
			value_code, value_code_system, interpretation, note, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING created_at, updated_at`,
		o.ID, o.FHIRID, o.Status, o.CategoryCode, o.CodeSystem, o.CodeValue, o.CodeDisplay,
		o.PatientID, o.EncounterID, o.EffectiveDatetime, o.ValueQuantity, o.ValueUnit, o.ValueString,
		o.ValueCode, o.ValueCodeSystem, o.Interpretation, o.Note, o.VersionID,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fhir.WriteError("insert observation", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Observation, error) {
	o, err := scanObservation(r.conn(ctx).QueryRow(ctx, `SELECT `+observationCols+` FROM observation WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return o, nil
}

func (r *repoPG) Update(ctx context.Context, o *Observation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE observation SET
			status=$2, category_code=$3, code_system=$4, code_value=$5, code_display=$6,
			patient_id=$7, encounter_id=$8, effective_datetime=$9, value_quantity=$10, value_unit=$11,
			value_string=$12, value_code=$13, value_code_system=$14, interpretation=$15, note=$16,
			version_id=$17, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		o.ID, o.Status, o.CategoryCode, o.CodeSystem, o.CodeValue, o.CodeDisplay,
		o.PatientID, o.EncounterID, o.EffectiveDatetime, o.ValueQuantity, o.ValueUnit,
		o.ValueString, o.ValueCode, o.ValueCodeSystem, o.Interpretation, o.Note, o.VersionID,
	).Scan(&o.UpdatedAt)
	if err != nil {
		return fhir.WriteError("update observation", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, o *Observation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE observation SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		o.ID, o.VersionID,
	).Scan(&o.DateVoided, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void observation: %w", err)
	}
	o.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("observation", observationCols)
	if err := q.ApplyParams(req.Params, SearchParams, Chains); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Observation, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanObservation)
}

// lastNQuery selects every matching observation with its encounter start.
// Grouping and truncation happen in fhir.SelectLastN.
func lastNQuery(filters url.Values) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("observation", observationCols+", "+encounterStartCol)
	if err := q.ApplyParams(filters, SearchParams, Chains); err != nil {
		return nil, err
	}
	q.OrderBy("patient_id, code_system, code_value, effective_datetime DESC, id")
	return q, nil
}

func (r *repoPG) LastNCandidates(ctx context.Context, filters url.Values) ([]LastNRow, error) {
	q, err := lastNQuery(filters)
	if err != nil {
		return nil, err
	}
	return fhir.ExecAll(ctx, r.conn(ctx), q, scanLastNRow)
}

func scanObservation(row fhir.RowScanner) (*Observation, error) {
	var o Observation
	if err := row.Scan(observationDest(&o)...); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanLastNRow(row fhir.RowScanner) (LastNRow, error) {
	var o Observation
	var start *time.Time
	if err := row.Scan(append(observationDest(&o), &start)...); err != nil {
		return LastNRow{}, err
	}
	return LastNRow{Observation: &o, EncounterStart: start}, nil
}

func observationDest(o *Observation) []interface{} {
	return []interface{}{
		&o.ID, &o.FHIRID, &o.Status, &o.CategoryCode, &o.CodeSystem, &o.CodeValue, &o.CodeDisplay,
		&o.PatientID, &o.EncounterID, &o.EffectiveDatetime, &o.ValueQuantity, &o.ValueUnit, &o.ValueString,
		&o.ValueCode, &o.ValueCodeSystem, &o.Interpretation, &o.Note,
		&o.VersionID, &o.Voided, &o.DateVoided, &o.CreatedAt, &o.UpdatedAt,
	}
}
