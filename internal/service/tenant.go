package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tenantwise/dbgovernor/internal/models"
	"github.com/tenantwise/dbgovernor/internal/repository"
	"github.com/tenantwise/dbgovernor/internal/storage"
)

type TenantService struct {
	repository *repository.TenantRepository
	redis      *storage.RedisClient
}

func NewTenantService(repo *repository.TenantRepository, redis *storage.RedisClient) *TenantService {
	return &TenantService{
		repository: repo,
		redis:      redis,
	}
}

// Creates a tenant and returns its API key. The plain key is only
// visible here; storage keeps the sha256 hash.
func (s *TenantService) Create(ctx context.Context, name, tier string) (*models.Tenant, string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, "", fmt.Errorf("failed to generate api key: %w", err)
	}

	key := "gov_" + base64.URLEncoding.EncodeToString(keyBytes)

	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	tenant := &models.Tenant{
		Name:       name,
		APIKeyHash: keyHash,
		Tier:       tier,
		Status:     "active",
	}

	if err := s.repository.Create(ctx, tenant); err != nil {
		return nil, "", fmt.Errorf("failed to create tenant: %w", err)
	}

	return tenant, key, nil
}

// Resolves an API key to its tenant, caching through redis so the
// admission path does not hit postgres on every request.
func (s *TenantService) Authenticate(ctx context.Context, key string) (*models.Tenant, error) {
	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	cacheKey := fmt.Sprintf("governor:tenant:cache:%s", keyHash)

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var tenant models.Tenant
			if err := json.Unmarshal([]byte(cached), &tenant); err == nil {
				return &tenant, nil
			}
		}
	}

	tenant, err := s.repository.FindByAPIKeyHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}

	if tenant == nil {
		return nil, nil
	}

	if s.redis != nil {
		tenantJSON, _ := json.Marshal(tenant)
		s.redis.Set(ctx, cacheKey, tenantJSON, 5*time.Minute)
	}

	return tenant, nil
}

func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.repository.FindByID(ctx, id)
}

func (s *TenantService) List(ctx context.Context) ([]models.Tenant, error) {
	return s.repository.List(ctx)
}

// Fire-and-forget from the request path.
func (s *TenantService) UpdateLastSeen(ctx context.Context, id uuid.UUID) {
	s.repository.UpdateLastSeen(ctx, id)
}

// Drops the redis auth cache entry so a suspended or transitioned
// tenant is re-read from the policy store on its next request.
func (s *TenantService) InvalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redis == nil {
		return
	}

	tenant, err := s.repository.FindByID(ctx, id)
	if err != nil || tenant == nil {
		return
	}

	cacheKey := fmt.Sprintf("governor:tenant:cache:%s", tenant.APIKeyHash)
	s.redis.Del(ctx, cacheKey)
}
