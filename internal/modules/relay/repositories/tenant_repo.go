package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dibantu/wa-relay/internal/modules/relay/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TenantRepo is the tenant directory. The relay core only reads it;
// mutations come from the admin surface.
type TenantRepo interface {
	FindActiveByRoutingKey(ctx context.Context, key string) ([]models.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	Create(ctx context.Context, t *models.Tenant) error
	Update(ctx context.Context, id uuid.UUID, req *models.UpdateTenantRequest) (*models.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type tenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *sql.DB) TenantRepo {
	return &tenantRepo{db: db}
}

const tenantColumns = `id, business_name, routing_keys, status, plan, credential, created_at, updated_at`

// FindActiveByRoutingKey returns every active tenant owning the key, oldest
// first. More than one match means a misconfigured directory; the resolver
// picks the first and logs the anomaly.
func (r *tenantRepo) FindActiveByRoutingKey(ctx context.Context, key string) ([]models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM relay_tenants
		WHERE status = 'active' AND $1 = ANY(routing_keys)
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTenants(rows)
}

func (r *tenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM relay_tenants
		WHERE id = $1
	`

	t, err := scanTenant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *tenantRepo) List(ctx context.Context) ([]models.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM relay_tenants
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTenants(rows)
}

func (r *tenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TenantStatusActive
	}
	if t.Plan == "" {
		t.Plan = "starter"
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO relay_tenants (id, business_name, routing_keys, status, plan, credential, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.BusinessName, pq.Array(t.RoutingKeys),
		t.Status, t.Plan, t.Credential, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *tenantRepo) Update(ctx context.Context, id uuid.UUID, req *models.UpdateTenantRequest) (*models.Tenant, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.BusinessName != nil {
		t.BusinessName = *req.BusinessName
	}
	if req.RoutingKeys != nil {
		t.RoutingKeys = req.RoutingKeys
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Plan != nil {
		t.Plan = *req.Plan
	}
	if req.Credential != nil {
		t.Credential = *req.Credential
	}
	t.UpdatedAt = time.Now()

	query := `
		UPDATE relay_tenants
		SET business_name = $2, routing_keys = $3, status = $4, plan = $5, credential = $6, updated_at = $7
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.BusinessName, pq.Array(t.RoutingKeys),
		t.Status, t.Plan, t.Credential, t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return t, nil
}

func (r *tenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM relay_tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("tenant not found")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	var keys pq.StringArray
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.BusinessName, &keys,
		&t.Status, &t.Plan, &t.Credential,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.RoutingKeys = keys
	if createdAt.Valid {
		t.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		t.UpdatedAt = updatedAt.Time
	}

	return &t, nil
}

func scanTenants(rows *sql.Rows) ([]models.Tenant, error) {
	var list []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			continue
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}
