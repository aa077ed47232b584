package condition

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/domain/encounter"
	"github.com/emr/fhir2/internal/domain/patient"
	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"code":                {Type: fhir.SearchParamToken, Column: "code_value", SysColumn: "code_system"},
	"clinical-status":     {Type: fhir.SearchParamToken, Column: "clinical_status"},
	"verification-status": {Type: fhir.SearchParamToken, Column: "verification_status"},
	"onset-date":          {Type: fhir.SearchParamDate, Column: "onset_datetime"},
	"recorded-date":       {Type: fhir.SearchParamDate, Column: "recorded_date"},
	"subject":             {Type: fhir.SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"patient":             {Type: fhir.SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"encounter":           {Type: fhir.SearchParamReference, Column: "encounter_id", TargetTable: "encounter"},
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

const defaultOrder = "recorded_date DESC NULLS LAST, id ASC"

const conditionCols = `id, fhir_id, clinical_status, verification_status, code_system, code_value, code_display,
	patient_id, encounter_id, onset_datetime, recorded_date, recorder_id, note,
	version_id, voided, date_voided, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, c *Condition) error {
	c.ID = uuid.New()
	c.FHIRID = c.ID.String()
	c.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO condition (id, fhir_id, clinical_status, verification_status, code_system, code_value, code_display,
			patient_id, encounter_id, onset_datetime, recorded_date, recorder_id, note, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		c.ID, c.FHIRID, c.ClinicalStatus, c.VerificationStatus, c.CodeSystem, c.CodeValue, c.CodeDisplay,
		c.PatientID, c.EncounterID, c.OnsetDatetime, c.RecordedDate, c.RecorderID, c.Note, c.VersionID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fhir.WriteError("insert condition", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Condition, error) {
	c, err := scanCondition(r.conn(ctx).QueryRow(ctx, `SELECT `+conditionCols+` FROM condition WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get condition: %w", err)
	}
	return c, nil
}

func (r *repoPG) Update(ctx context.Context, c *Condition) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE condition SET
			clinical_status=$2, verification_status=$3, code_system=$4, code_value=$5, code_display=$6,
			patient_id=$7, encounter_id=$8, onset_datetime=$9, recorded_date=$10, recorder_id=$11, note=$12,
			version_id=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.ClinicalStatus, c.VerificationStatus, c.CodeSystem, c.CodeValue, c.CodeDisplay,
		c.PatientID, c.EncounterID, c.OnsetDatetime, c.RecordedDate, c.RecorderID, c.Note, c.VersionID,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fhir.WriteError("update condition", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, c *Condition) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE condition SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		c.ID, c.VersionID,
	).Scan(&c.DateVoided, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void condition: %w", err)
	}
	c.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("condition", conditionCols)
	if err := q.ApplyParams(req.Params, SearchParams, Chains); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Condition, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanCondition)
}

func scanCondition(row fhir.RowScanner) (*Condition, error) {
	var c Condition
	err := row.Scan(&c.ID, &c.FHIRID, &c.ClinicalStatus, &c.VerificationStatus, &c.CodeSystem, &c.CodeValue, &c.CodeDisplay,
		&c.PatientID, &c.EncounterID, &c.OnsetDatetime, &c.RecordedDate, &c.RecorderID, &c.Note,
		&c.VersionID, &c.Voided, &c.DateVoided, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
