package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/storage"
	"gorm.io/gorm"
)

type TenantRepository struct {
	db *storage.Postgres
}

func NewTenantRepository(db *storage.Postgres) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	return r.db.DB.WithContext(ctx).Create(tenant).Error
}

func (r *TenantRepository) FindByAPIKeyHash(ctx context.Context, hash string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.DB.WithContext(ctx).
		Where("api_key_hash = ? AND status = ?", hash, "active").
		First(&tenant).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &tenant, err
}

func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&tenant).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &tenant, err
}

func (r *TenantRepository) List(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&tenants).Error

	return tenants, err
}

func (r *TenantRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", id).
		Update("tier", tier).Error
}

func (r *TenantRepository) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now()).Error
}

func (r *TenantRepository) CountByTier(ctx context.Context, tier string) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("tier = ? AND status = ?", tier, "active").
		Count(&count).Error

	return count, err
}
