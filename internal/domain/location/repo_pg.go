package location

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
)

var SearchParams = fhir.WithCommonParams(map[string]fhir.SearchParamConfig{
	"name":               {Type: fhir.SearchParamString, Column: "name"},
	"status":             {Type: fhir.SearchParamToken, Column: "status"},
	"address-city":       {Type: fhir.SearchParamString, Column: "city"},
	"address-state":      {Type: fhir.SearchParamString, Column: "state"},
	"address-country":    {Type: fhir.SearchParamString, Column: "country"},
	"address-postalcode": {Type: fhir.SearchParamString, Column: "postal_code"},
	"partof":             {Type: fhir.SearchParamReference, Column: "parent_id", TargetTable: "location"},
})

// Chains resolves partof.<param> against the parent location.
var Chains = newChains()

func newChains() *fhir.ChainRegistry {
	chains := fhir.NewChainRegistry()
	chains.Register("partof", fhir.ChainTarget{
		ResourceType:    ResourceType,
		ReferenceColumn: "parent_id",
		TargetTable:     "location",
		Params:          SearchParams,
	})
	return chains
}

const defaultOrder = "name ASC, id ASC"

const locationCols = `id, fhir_id, name, description, status, city, state, country, postal_code, parent_id,
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

func (r *repoPG) Create(ctx context.Context, l *Location) error {
	l.ID = uuid.New()
	l.FHIRID = l.ID.String()
	l.VersionID = 1
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO location (id, fhir_id, name, description, status, city, state, country, postal_code, parent_id, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		l.ID, l.FHIRID, l.Name, l.Description, l.Status, l.City, l.State, l.Country, l.PostalCode, l.ParentID, l.VersionID,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fhir.WriteError("insert location", err)
	}
	return nil
}

func (r *repoPG) GetByFHIRID(ctx context.Context, fhirID string) (*Location, error) {
	l, err := scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locationCols+` FROM location WHERE fhir_id = $1`, fhirID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fhir.ErrNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	return l, nil
}

func (r *repoPG) Update(ctx context.Context, l *Location) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE location SET
			name=$2, description=$3, status=$4, city=$5, state=$6, country=$7, postal_code=$8, parent_id=$9,
			version_id=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		l.ID, l.Name, l.Description, l.Status, l.City, l.State, l.Country, l.PostalCode, l.ParentID, l.VersionID,
	).Scan(&l.UpdatedAt)
	if err != nil {
		return fhir.WriteError("update location", err)
	}
	return nil
}

func (r *repoPG) Void(ctx context.Context, l *Location) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE location SET voided = true, date_voided = NOW(), version_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING date_voided, updated_at`,
		l.ID, l.VersionID,
	).Scan(&l.DateVoided, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("void location: %w", err)
	}
	l.Voided = true
	return nil
}

func searchQuery(req *fhir.SearchRequest) (*fhir.SearchQuery, error) {
	q := fhir.NewSearchQuery("location", locationCols)
	if err := q.ApplyParams(req.Params, SearchParams, Chains); err != nil {
		return nil, err
	}
	if err := q.ApplySort(req.Sort, defaultOrder, SearchParams); err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repoPG) Search(ctx context.Context, req *fhir.SearchRequest) ([]*Location, int, error) {
	q, err := searchQuery(req)
	if err != nil {
		return nil, 0, err
	}
	return fhir.ExecSearch(ctx, r.conn(ctx), q, req, scanLocation)
}

func scanLocation(row fhir.RowScanner) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.FHIRID, &l.Name, &l.Description, &l.Status, &l.City, &l.State, &l.Country, &l.PostalCode, &l.ParentID,
		&l.VersionID, &l.Voided, &l.DateVoided, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
