package encounter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/domain/location"
	"github.com/emr/fhir2/internal/domain/patient"
	"github.com/emr/fhir2/internal/domain/practitioner"
	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"status":      {Type: fhir.SearchParamToken, Column: "status"},
	"class":       {Type: fhir.SearchParamToken, Column: "class_code"},
	"type":        {Type: fhir.SearchParamToken, Column: "type_code", SysColumn: "type_system"},
	"date":        {Type: fhir.SearchParamDate, Column: "period_start"},
	"subject":     {Type: fhir.SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"patient":     {Type: fhir.SearchParamReference, Column: "patient_id", TargetTable: "patient"},
	"location":    {Type: fhir.SearchParamReference, Column: "location_id", TargetTable: "location"},
	"participant": {Type: fhir.SearchParamReference, Column: "practitioner_id", TargetTable: "practitioner"},
	"part-of":     {Type: fhir.SearchParamReference, Column: "part_of_id", TargetTable: "encounter"},
})

// Chains resolves subject.*, patient.*, location.*, participant.* and
// part-of.* against the referenced tables.
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
	chains.Register("location", fhir.ChainTarget{
		ResourceType:    location.ResourceType,
		ReferenceColumn: "location_id",
		TargetTable:     "location",
		Params:          location.SearchParams,
		Chains:          location.Chains,
	})
	chains.Register("participant", fhir.ChainTarget{
		ResourceType:    practitioner.ResourceType,
		ReferenceColumn: "practitioner_id",
		TargetTable:     "practitioner",
		Params:          practitioner.SearchParams,
	})
	chains.Register("part-of", fhir.ChainTarget{
		ResourceType:    ResourceType,
		ReferenceColumn: "part_of_id",
		TargetTable:     "encounter",
		Params:          SearchParams,
	})
	return chains
}

const defaultOrder = "period_start DESC NULLS LAST, id ASC"

const encounterCols = `id, fhir_id, status, class_code, type_system, type_code, type_display,
	patient_id, location_id, practitioner_id, period_start, period_end, part_of_id,
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

func (r *repoPG) Create(ctx context.Context, e *Encounter) error {
	e.ID = uuid.New()
	e.FHIRID = e.ID.String()
	e.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (id, fhir_id, status, class_code, type_system, type_code, type_display,
			patient_id, location_id, practitioner_id, period_start, period_end, part_of_id, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		e.ID, e.FHIRID, e.Status, e.ClassCode, e.TypeSystem, e.TypeCode, e.TypeDisplay,
		e.PatientID, e.LocationID, e.PractitionerID, e.PeriodStart, e.PeriodEnd, e.PartOfID, e.VersionID,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fhir.WriteError("insert encounter", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Encounter, error) {
	e, err := scanEncounter(r.conn(ctx).QueryRow(ctx, `SELECT `+encounterCols+` FROM encounter WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get encounter: %w", err)
	}
	return e, nil
}

func (r *repoPG) Update(ctx context.Context, e *Encounter) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE encounter SET
			status=$2, class_code=$3, type_system=$4, type_code=$5, type_display=$6,
			patient_id=$7, location_id=$8, practitioner_id=$9, period_start=$10, period_end=$11, part_of_id=$12,
			version_id=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.Status, e.ClassCode, e.TypeSystem, e.TypeCode, e.TypeDisplay,
		e.PatientID, e.LocationID, e.PractitionerID, e.PeriodStart, e.PeriodEnd, e.PartOfID, e.VersionID,
	).Scan(&e.UpdatedAt)
	if err != nil {
		return fhir.WriteError("update encounter", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, e *Encounter) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE encounter SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		e.ID, e.VersionID,
	).Scan(&e.DateVoided, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void encounter: %w", err)
	}
	e.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("encounter", encounterCols)
	if err := q.ApplyParams(req.Params, SearchParams, Chains); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Encounter, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanEncounter)
}

func scanEncounter(row fhir.RowScanner) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.FHIRID, &e.Status, &e.ClassCode, &e.TypeSystem, &e.TypeCode, &e.TypeDisplay,
		&e.PatientID, &e.LocationID, &e.PractitionerID, &e.PeriodStart, &e.PeriodEnd, &e.PartOfID,
		&e.VersionID, &e.Voided, &e.DateVoided, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
