package practitioner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// SearchParams are the Practitioner search parameters, also reachable
// through participant, owner and requester chains.
var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"identifier": {Type: fhir.SearchParamToken, Column: "identifier_value", SysColumn: "identifier_system"},
	"name":       {Type: fhir.SearchParamString, Columns: []string{"family_name", "given_name"}},
	"family":     {Type: fhir.SearchParamString, Column: "family_name"},
	"given":      {Type: fhir.SearchParamString, Column: "given_name"},
	"gender":     {Type: fhir.SearchParamToken, Column: "gender"},
	"active":     {Type: fhir.SearchParamBoolean, Column: "active"},
})

const defaultOrder = "family_name ASC NULLS LAST, given_name ASC NULLS LAST, id ASC"

const practitionerCols = `id, fhir_id, identifier_system, identifier_value, family_name, given_name,
	gender, active, version_id, voided, date_voided, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, p *Practitioner) error {
	p.ID = uuid.New()
	p.FHIRID = p.ID.String()
	p.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO practitioner (id, fhir_id, identifier_system, identifier_value, family_name, given_name,
			gender, active, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.FHIRID, p.IdentifierSystem, p.IdentifierValue, p.FamilyName, p.GivenName,
		p.Gender, p.Active, p.VersionID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert practitioner: %w", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Practitioner, error) {
	p, err := scanPractitioner(r.conn(ctx).QueryRow(ctx, `SELECT `+practitionerCols+` FROM practitioner WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get practitioner: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Practitioner) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE practitioner SET
			identifier_system=$2, identifier_value=$3, family_name=$4, given_name=$5,
			gender=$6, active=$7, version_id=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.IdentifierSystem, p.IdentifierValue, p.FamilyName, p.GivenName,
		p.Gender, p.Active, p.VersionID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update practitioner: %w", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, p *Practitioner) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE practitioner SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		p.ID, p.VersionID,
	).Scan(&p.DateVoided, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void practitioner: %w", err)
	}
	p.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("practitioner", practitionerCols)
	if err := q.ApplyParams(req.Params, SearchParams, nil); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Practitioner, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanPractitioner)
}

func scanPractitioner(row fhir.RowScanner) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.FHIRID, &p.IdentifierSystem, &p.IdentifierValue, &p.FamilyName, &p.GivenName,
		&p.Gender, &p.Active, &p.VersionID, &p.Voided, &p.DateVoided, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
