package models

import "time"

// Product is an inventory record in the products table. Stock is mutated
// only through the repository's atomic decrement.
type Product struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateProductRequest is the payload for the admin product-create endpoint.
// Threshold is not accepted from the caller; it is derived from price.
type CreateProductRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Price     float64 `json:"price" binding:"required,gt=0"`
	Stock     int     `json:"stock" binding:"gte=0"`
}
