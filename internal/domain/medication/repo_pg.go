package medication

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"code":   {Type: fhir.SearchParamToken, Column: "code_value", SysColumn: "code_system"},
	"status": {Type: fhir.SearchParamToken, Column: "status"},
	"form":   {Type: fhir.SearchParamToken, Column: "form_code"},
})

const defaultOrder = "code_display ASC NULLS LAST, id ASC"

const medicationCols = `id, fhir_id, code_system, code_value, code_display, status, form_code, form_display, ingredient,
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

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	m.FHIRID = m.ID.String()
	m.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication (id, fhir_id, code_system, code_value, code_display, status, form_code, form_display, ingredient, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		m.ID, m.FHIRID, m.CodeSystem, m.CodeValue, m.CodeDisplay, m.Status, m.FormCode, m.FormDisplay, m.Ingredient, m.VersionID,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fhir.WriteError("insert medication", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Medication, error) {
	m, err := scanMedication(r.conn(ctx).QueryRow(ctx, `SELECT `+medicationCols+` FROM medication WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (r *repoPG) Update(ctx context.Context, m *Medication) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medication SET
			code_system=$2, code_value=$3, code_display=$4, status=$5, form_code=$6, form_display=$7, ingredient=$8,
			version_id=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.CodeSystem, m.CodeValue, m.CodeDisplay, m.Status, m.FormCode, m.FormDisplay, m.Ingredient, m.VersionID,
	).Scan(&m.UpdatedAt)
	if err != nil {
		return fhir.WriteError("update medication", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, m *Medication) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medication SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		m.ID, m.VersionID,
	).Scan(&m.DateVoided, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void medication: %w", err)
	}
	m.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("medication", medicationCols)
	if err := q.ApplyParams(req.Params, SearchParams, nil); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Medication, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanMedication)
}

func scanMedication(row fhir.RowScanner) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.FHIRID, &m.CodeSystem, &m.CodeValue, &m.CodeDisplay, &m.Status, &m.FormCode, &m.FormDisplay, &m.Ingredient,
		&m.VersionID, &m.Voided, &m.DateVoided, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
