package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ajvera/storeguard-be/internal/models"
	"github.com/google/uuid"
)

// RuleServiceProvider defines the interface for the rule catalog. ListActive
// is the evaluator's read path; the CRUD methods back the dashboard's rule
// configuration screens.
type RuleServiceProvider interface {
	ListActive(ctx context.Context, storeID string) ([]models.Rule, error)
	ListByStore(ctx context.Context, storeID string) ([]models.Rule, error)
	GetRuleByID(ctx context.Context, id string) (models.Rule, error)
	CreateRule(ctx context.Context, rule models.Rule) (models.Rule, error)
	UpdateRule(ctx context.Context, id string, rule models.Rule) (models.Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// RuleService provides business logic for detection rules. Active rules are
// cached per store; any mutation invalidates the store's cache entry.
type RuleService struct {
	db *sql.DB

	mu     sync.RWMutex
	active map[string][]models.Rule
}

// NewRuleService creates a new RuleService.
func NewRuleService(db *sql.DB) *RuleService {
	return &RuleService{
		db:     db,
		active: make(map[string][]models.Rule),
	}
}

// validateParams decodes the rule's parameters for the kinds this process
// evaluates. Kinds evaluated elsewhere ("pattern", "ml") are stored as-is.
func validateParams(rule *models.Rule) error {
	var err error
	switch rule.Kind {
	case models.RuleKindThreshold:
		_, err = rule.ThresholdParams()
	case models.RuleKindAbsence:
		_, err = rule.AbsenceParams()
	case models.RuleKindImmediate:
		_, err = rule.ImmediateParams()
	case models.RuleKindTemporal:
		_, err = rule.TemporalParams()
	case models.RuleKindPattern, models.RuleKindML:
		// accepted, evaluated by an external engine
	default:
		err = fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
	return err
}

// ListActive returns the store's active rules from the cache, loading from
// the database on a miss.
func (s *RuleService) ListActive(ctx context.Context, storeID string) ([]models.Rule, error) {
	s.mu.RLock()
	rules, ok := s.active[storeID]
	s.mu.RUnlock()
	if ok {
		return rules, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, kind, params_json, is_active, created_at
		FROM rules WHERE store_id = ? AND is_active = TRUE ORDER BY created_at`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules, err = s.scanRules(rows)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active[storeID] = rules
	s.mu.Unlock()
	return rules, nil
}

func (s *RuleService) invalidate(storeID string) {
	s.mu.Lock()
	delete(s.active, storeID)
	s.mu.Unlock()
}

// ListByStore retrieves all rules for a store, active or not.
func (s *RuleService) ListByStore(ctx context.Context, storeID string) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, kind, params_json, is_active, created_at
		FROM rules WHERE store_id = ? ORDER BY created_at`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.scanRules(rows)
}

// GetRuleByID retrieves a single rule by its ID.
func (s *RuleService) GetRuleByID(ctx context.Context, id string) (models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, kind, params_json, is_active, created_at
		FROM rules WHERE id = ?`, id)
	return s.scanRule(row)
}

// CreateRule validates and saves a new rule.
func (s *RuleService) CreateRule(ctx context.Context, rule models.Rule) (models.Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.PrepareForDB()
	if err := validateParams(&rule); err != nil {
		return models.Rule{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, store_id, name, kind, params_json, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.StoreID, rule.Name, rule.Kind, rule.ParamsJSON, rule.IsActive)
	if err != nil {
		return models.Rule{}, err
	}

	s.invalidate(rule.StoreID)
	return s.GetRuleByID(ctx, rule.ID)
}

// UpdateRule validates and updates an existing rule.
func (s *RuleService) UpdateRule(ctx context.Context, id string, rule models.Rule) (models.Rule, error) {
	existing, err := s.GetRuleByID(ctx, id)
	if err != nil {
		return models.Rule{}, err
	}

	rule.PrepareForDB()
	rule.ID = id
	if err := validateParams(&rule); err != nil {
		return models.Rule{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE rules SET name = ?, kind = ?, params_json = ?, is_active = ? WHERE id = ?`,
		rule.Name, rule.Kind, rule.ParamsJSON, rule.IsActive, id)
	if err != nil {
		return models.Rule{}, err
	}

	s.invalidate(existing.StoreID)
	return s.GetRuleByID(ctx, id)
}

// DeleteRule removes a rule from the catalog.
func (s *RuleService) DeleteRule(ctx context.Context, id string) error {
	rule, err := s.GetRuleByID(ctx, id)
	if err != nil {
		return fmt.Errorf("could not find rule to delete: %w", err)
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err == nil {
		s.invalidate(rule.StoreID)
	}
	return err
}

// scanRules is a helper to scan multiple rows into a slice of Rules.
func (s *RuleService) scanRules(rows *sql.Rows) ([]models.Rule, error) {
	var rules []models.Rule
	for rows.Next() {
		rule, err := s.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// scanRule is a helper to scan a single row into a Rule struct.
func (s *RuleService) scanRule(scanner interface{ Scan(...any) error }) (models.Rule, error) {
	var rule models.Rule
	var paramsJSON sql.NullString
	err := scanner.Scan(
		&rule.ID,
		&rule.StoreID,
		&rule.Name,
		&rule.Kind,
		&paramsJSON,
		&rule.IsActive,
		&rule.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Rule{}, fmt.Errorf("rule not found")
		}
		return models.Rule{}, err
	}
	if paramsJSON.Valid {
		rule.ParamsJSON = paramsJSON.String
	}
	rule.PrepareForAPI()
	return rule, nil
}
