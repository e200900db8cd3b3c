package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storesphere/checkout-service/controllers"
)

func RegisterRoutes(r *gin.Engine, checkout *controllers.CheckoutController, products *controllers.ProductController) {
	api := r.Group("/api")
	{
		api.POST("/checkout", checkout.Checkout)
		api.POST("/products", products.CreateProduct)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
}
