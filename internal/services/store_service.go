package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// StoreServiceProvider defines the interface for store services.
type StoreServiceProvider interface {
	CreateStore(ctx context.Context, store models.Store, apiKey string) (models.Store, error)
	GetStoreByID(ctx context.Context, id string) (models.Store, error)
	ListStores(ctx context.Context) ([]models.Store, error)
	ListStoresByOwner(ctx context.Context, ownerUserID string) ([]models.Store, error)
	VerifyIngestKey(ctx context.Context, storeID, apiKey string) error
}

// StoreService provides business logic for store management. Terminal ingest
// keys are stored as bcrypt hashes; a verified-key cache keeps the bcrypt
// comparison off the per-event hot path.
type StoreService struct {
	db *sql.DB

	mu       sync.RWMutex
	verified map[string]string // store id -> plaintext key proven against the hash
}

// NewStoreService creates a new StoreService.
func NewStoreService(db *sql.DB) *StoreService {
	return &StoreService{
		db:       db,
		verified: make(map[string]string),
	}
}

// CreateStore creates a new store, hashing its terminal ingest key.
func (s *StoreService) CreateStore(ctx context.Context, store models.Store, apiKey string) (models.Store, error) {
	if store.ID == "" {
		store.ID = uuid.New().String()
	}
	if store.Timezone == "" {
		store.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(store.Timezone); err != nil {
		return models.Store{}, fmt.Errorf("invalid timezone %q: %w", store.Timezone, err)
	}

	var hash []byte
	if apiKey != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
		if err != nil {
			return models.Store{}, fmt.Errorf("failed to hash ingest key: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, timezone, owner_user_id, api_key_hash)
		VALUES (?, ?, ?, ?, ?)`,
		store.ID, store.Name, store.Timezone, store.OwnerUserID, string(hash))
	if err != nil {
		return models.Store{}, err
	}
	return s.GetStoreByID(ctx, store.ID)
}

// GetStoreByID retrieves a single store by its ID.
func (s *StoreService) GetStoreByID(ctx context.Context, id string) (models.Store, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, timezone, owner_user_id, api_key_hash, created_at
		FROM stores WHERE id = ?`, id)
	return s.scanStore(row)
}

// ListStores retrieves all stores.
func (s *StoreService) ListStores(ctx context.Context) ([]models.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, timezone, owner_user_id, api_key_hash, created_at
		FROM stores ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []models.Store
	for rows.Next() {
		store, err := s.scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

// ListStoresByOwner retrieves the stores owned by one user.
func (s *StoreService) ListStoresByOwner(ctx context.Context, ownerUserID string) ([]models.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, timezone, owner_user_id, api_key_hash, created_at
		FROM stores WHERE owner_user_id = ? ORDER BY created_at`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []models.Store
	for rows.Next() {
		store, err := s.scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

// VerifyIngestKey checks a terminal's X-API-Key against the store's stored
// hash. Successful verifications are cached so subsequent events only pay a
// string comparison.
func (s *StoreService) VerifyIngestKey(ctx context.Context, storeID, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("missing ingest key")
	}

	s.mu.RLock()
	cached, ok := s.verified[storeID]
	s.mu.RUnlock()
	if ok && cached == apiKey {
		return nil
	}

	store, err := s.GetStoreByID(ctx, storeID)
	if err != nil {
		return fmt.Errorf("unknown store %s", storeID)
	}
	if store.APIKeyHash == "" {
		return fmt.Errorf("store %s has no ingest key configured", storeID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.APIKeyHash), []byte(apiKey)); err != nil {
		return fmt.Errorf("invalid ingest key for store %s", storeID)
	}

	s.mu.Lock()
	s.verified[storeID] = apiKey
	s.mu.Unlock()
	return nil
}

// scanStore is a helper to scan a single row into a Store struct.
func (s *StoreService) scanStore(scanner interface{ Scan(...any) error }) (models.Store, error) {
	var store models.Store
	var hash sql.NullString
	err := scanner.Scan(
		&store.ID,
		&store.Name,
		&store.Timezone,
		&store.OwnerUserID,
		&hash,
		&store.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Store{}, fmt.Errorf("store not found")
		}
		return models.Store{}, err
	}
	if hash.Valid {
		store.APIKeyHash = hash.String
	}
	return store, nil
}
