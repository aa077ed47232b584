package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

// SearchParams are the Patient search parameters. Other resources chain
// into them through subject and patient references.
var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"identifier":         {Type: fhir.SearchParamToken, Column: "identifier_value", SysColumn: "identifier_system"},
	"name":               {Type: fhir.SearchParamString, Columns: []string{"family_name", "given_name"}},
	"family":             {Type: fhir.SearchParamString, Column: "family_name"},
	"given":              {Type: fhir.SearchParamString, Column: "given_name"},
	"gender":             {Type: fhir.SearchParamToken, Column: "gender"},
	"birthdate":          {Type: fhir.SearchParamDate, Column: "birth_date"},
	"deceased":           {Type: fhir.SearchParamBoolean, Column: "deceased"},
	"address-city":       {Type: fhir.SearchParamString, Column: "city"},
	"address-state":      {Type: fhir.SearchParamString, Column: "state"},
	"address-country":    {Type: fhir.SearchParamString, Column: "country"},
	"address-postalcode": {Type: fhir.SearchParamString, Column: "postal_code"},
	"active":             {Type: fhir.SearchParamBoolean, Column: "active"},
})

const defaultOrder = "family_name ASC NULLS LAST, given_name ASC NULLS LAST, id ASC"

const patientCols = `id, fhir_id, identifier_system, identifier_value, family_name, given_name,
	gender, birth_date, deceased, deceased_datetime, city, state, country, postal_code, active,
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

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.FHIRID = p.ID.String()
	p.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (
			id, fhir_id, identifier_system, identifier_value, family_name, given_name,
			gender, birth_date, deceased, deceased_datetime, city, state, country, postal_code, active,
			version_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		p.ID, p.FHIRID, p.IdentifierSystem, p.IdentifierValue, p.FamilyName, p.GivenName,
		p.Gender, p.BirthDate, p.Deceased, p.DeceasedDatetime, p.City, p.State, p.Country, p.PostalCode, p.Active,
		p.VersionID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			identifier_system=$2, identifier_value=$3, family_name=$4, given_name=$5,
			gender=$6, birth_date=$7, deceased=$8, deceased_datetime=$9,
			city=$10, state=$11, country=$12, postal_code=$13, active=$14,
			version_id=$15, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.IdentifierSystem, p.IdentifierValue, p.FamilyName, p.GivenName,
		p.Gender, p.BirthDate, p.Deceased, p.DeceasedDatetime,
		p.City, p.State, p.Country, p.PostalCode, p.Active,
		p.VersionID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		p.ID, p.VersionID,
	).Scan(&p.DateVoided, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void patient: %w", err)
	}
	p.Voided = true
	return nil
}

// searchQuery translates a search request into SQL without touching the
// database.
func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("patient", patientCols)
	if err := q.ApplyParams(req.Params, SearchParams, nil); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Patient, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanPatient)
}

func scanPatient(row fhir.RowScanner) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FHIRID, &p.IdentifierSystem, &p.IdentifierValue, &p.FamilyName, &p.GivenName,
		&p.Gender, &p.BirthDate, &p.Deceased, &p.DeceasedDatetime, &p.City, &p.State, &p.Country, &p.PostalCode, &p.Active,
		&p.VersionID, &p.Voided, &p.DateVoided, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
