package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-service/internal/kv"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

const defaultProductID = "default"

// ContentService covers the two admin-writable, publicly-readable documents:
// the single product record and the injected-script config. Script injection
// is an admin-trusted capability; the stored code is served verbatim and is
// not a security boundary.
type ContentService struct {
	store  kv.Store
	logger *zap.Logger
}

func NewContentService(store kv.Store) *ContentService {
	return &ContentService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetProduct reads the single product record.
func (s *ContentService) GetProduct(ctx context.Context) (*models.Product, error) {
	data, err := s.store.Get(ctx, models.PrefixProduct+defaultProductID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, fmt.Errorf("%w: product", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &product, nil
}

// SetProduct replaces the product record.
func (s *ContentService) SetProduct(ctx context.Context, product *models.Product) error {
	if product.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if product.ID == "" {
		product.ID = defaultProductID
	}

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	if err := s.store.Put(ctx, models.PrefixProduct+defaultProductID, data, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.logger.Info("Product updated", zap.String("name", product.Name), zap.Float64("price", product.Price))
	return nil
}

// GetScripts returns the configured script list, defaulting to empty.
func (s *ContentService) GetScripts(ctx context.Context) ([]models.Script, error) {
	data, err := s.store.Get(ctx, models.KeyScripts)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []models.Script{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var scripts []models.Script
	if err := json.Unmarshal(data, &scripts); err != nil {
		return []models.Script{}, nil
	}
	return scripts, nil
}

// SetScripts fully replaces the stored list. No merge.
func (s *ContentService) SetScripts(ctx context.Context, scripts []models.Script) error {
	for _, script := range scripts {
		if script.Location != "head" && script.Location != "body" {
			return fmt.Errorf("%w: location must be head or body", ErrMissingField)
		}
	}

	data, err := json.Marshal(scripts)
	if err != nil {
		return fmt.Errorf("failed to marshal scripts: %w", err)
	}
	if err := s.store.Put(ctx, models.KeyScripts, data, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.logger.Info("Injected-script config replaced", zap.Int("count", len(scripts)))
	return nil
}
