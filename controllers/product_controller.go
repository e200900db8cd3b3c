package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storesphere/checkout-service/models"
	"github.com/storesphere/checkout-service/services"
)

type ProductController struct {
	products *services.ProductService
}

func NewProductController(products *services.ProductService) *ProductController {
	return &ProductController{products: products}
}

// CreateProduct handles POST /api/products.
func (pc *ProductController) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	product, err := pc.products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		log.Printf("[ProductController] create failed for product_id=%s: %v", req.ProductID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create product"})
		return
	}

	c.JSON(http.StatusCreated, product)
}
