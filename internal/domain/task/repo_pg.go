package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/domain/encounter"
	"github.com/emr/fhir2/internal/domain/patient"
	"github.com/emr/fhir2/internal/domain/practitioner"
	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"status":      {Type: fhir.SearchParamToken, Column: "status"},
	"intent":      {Type: fhir.SearchParamToken, Column: "intent"},
	"priority":    {Type: fhir.SearchParamToken, Column: "priority"},
	"code":        {Type: fhir.SearchParamToken, Column: "code_value", SysColumn: "code_system"},
	"owner":       {Type: fhir.SearchParamReference, Column: "owner_id", TargetTable: "practitioner"},
	"requester":   {Type: fhir.SearchParamReference, Column: "requester_id", TargetTable: "practitioner"},
	"patient":     {Type: fhir.SearchParamReference, Column: "for_patient_id", TargetTable: "patient"},
	"subject":     {Type: fhir.SearchParamReference, Column: "for_patient_id", TargetTable: "patient"},
	"encounter":   {Type: fhir.SearchParamReference, Column: "encounter_id", TargetTable: "encounter"},
	"based-on":    {Type: fhir.SearchParamURI, Column: "based_on"},
	"authored-on": {Type: fhir.SearchParamDate, Column: "authored_on"},
	"modified":    {Type: fhir.SearchParamDate, Column: "last_modified"},
})

var Chains = newChains()

func newChains() *fhir.ChainRegistry {
	chains := fhir.NewChainRegistry()
	patientTarget := fhir.ChainTarget{
		ResourceType:    patient.ResourceType,
		ReferenceColumn: "for_patient_id",
		TargetTable:     "patient",
		Params:          patient.SearchParams,
	}
	chains.Register("patient", patientTarget)
	chains.Register("subject", patientTarget)
	chains.Register("encounter", fhir.ChainTarget{
		ResourceType:    encounter.ResourceType,
		ReferenceColumn: "encounter_id",
		TargetTable:     "encounter",
		Params:          encounter.SearchParams,
		Chains:          encounter.Chains,
	})
	for param, col := range map[string]string{"owner": "owner_id", "requester": "requester_id"} {
		chains.Register(param, fhir.ChainTarget{
			ResourceType:    practitioner.ResourceType,
			ReferenceColumn: col,
			TargetTable:     "practitioner",
			Params:          practitioner.SearchParams,
		})
	}
	return chains
}

const defaultOrder = "authored_on DESC NULLS LAST, id ASC"

const taskCols = `id, fhir_id, status, intent, priority, code_system, code_value, code_display, description,
	for_patient_id, encounter_id, owner_id, requester_id, based_on, authored_on, last_modified,
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

// Create stamps last_modified with the insert time unless the task carries one.
func (r *repoPG) Create(ctx context.Context, t *Task) error {
	t.ID = uuid.New()
	t.FHIRID = t.ID.String()
	t.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO task (id, fhir_id, status, intent, priority, code_system, code_value, code_display, description,
			for_patient_id, encounter_id, owner_id, requester_id, based_on, authored_on, last_modified, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,COALESCE($16, NOW()),$17)
		RETURNING last_modified, created_at, updated_at`,
		t.ID, t.FHIRID, t.Status, t.Intent, t.Priority, t.CodeSystem, t.CodeValue, t.CodeDisplay, t.Description,
		t.ForPatientID, t.EncounterID, t.OwnerID, t.RequesterID, t.BasedOn, t.AuthoredOn, t.LastModified, t.VersionID,
	).Scan(&t.LastModified, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fhir.WriteError("insert task", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Task, error) {
	t, err := scanTask(r.conn(ctx).QueryRow(ctx, `SELECT `+taskCols+` FROM task WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (r *repoPG) Update(ctx context.Context, t *Task) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE task SET
			status=$2, intent=$3, priority=$4, code_system=$5, code_value=$6, code_display=$7, description=$8,
			for_patient_id=$9, encounter_id=$10, owner_id=$11, requester_id=$12, based_on=$13, authored_on=$14,
			last_modified=COALESCE($15, NOW()), version_id=$16, updated_at=NOW()
		WHERE id = $1
		RETURNING last_modified, updated_at`,
		t.ID, t.Status, t.Intent, t.Priority, t.CodeSystem, t.CodeValue, t.CodeDisplay, t.Description,
		t.ForPatientID, t.EncounterID, t.OwnerID, t.RequesterID, t.BasedOn, t.AuthoredOn,
		t.LastModified, t.VersionID,
	).Scan(&t.LastModified, &t.UpdatedAt)
	if err != nil {
		return fhir.WriteError("update task", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, t *Task) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE task SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		t.ID, t.VersionID,
	).Scan(&t.DateVoided, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void task: %w", err)
	}
	t.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("task", taskCols)
	if err := q.ApplyParams(req.Params, SearchParams, Chains); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Task, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanTask)
}

func scanTask(row fhir.RowScanner) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.FHIRID, &t.Status, &t.Intent, &t.Priority, &t.CodeSystem, &t.CodeValue, &t.CodeDisplay, &t.Description,
		&t.ForPatientID, &t.EncounterID, &t.OwnerID, &t.RequesterID, &t.BasedOn, &t.AuthoredOn, &t.LastModified,
		&t.VersionID, &t.Voided, &t.DateVoided, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
