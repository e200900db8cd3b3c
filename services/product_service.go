package services

import (
	"context"
	"fmt"
	"time"

	"github.com/storesphere/checkout-service/models"
	"github.com/storesphere/checkout-service/repository"
)

// ProductService handles admin product management. Listing and catalog
// browsing live elsewhere; this service only seeds inventory records.
type ProductService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// CreateProduct stores a new product. The low-stock threshold is derived
// from the price here, at creation time, and never recomputed afterwards.
func (s *ProductService) CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error) {
	product := &models.Product{
		ProductID: req.ProductID,
		Name:      req.Name,
		Price:     req.Price,
		Stock:     req.Stock,
		Threshold: StockThreshold(req.Price),
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}
