package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacy-backend/middleware"
	"pharmacy-backend/models"
	"pharmacy-backend/services"
)

type DeliveryBoyController struct {
	deliveryBoyService services.DeliveryBoyService
	cookieMaxAge       int
}

func NewDeliveryBoyController(deliveryBoyService services.DeliveryBoyService, cookieMaxAge int) *DeliveryBoyController {
	return &DeliveryBoyController{deliveryBoyService: deliveryBoyService, cookieMaxAge: cookieMaxAge}
}

// Create registers a new delivery-boy account under the calling
// pharmacist and emails the generated credentials.
func (dc *DeliveryBoyController) Create(c *gin.Context) {
	pharmacistID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreateDeliveryBoyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	boy, svcErr := dc.deliveryBoyService.Create(c.Request.Context(), pharmacistID, &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Delivery boy created, credentials emailed", "delivery_boy": boy})
}

func (dc *DeliveryBoyController) List(c *gin.Context) {
	pharmacistID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	boys, svcErr := dc.deliveryBoyService.ListByPharmacist(c.Request.Context(), pharmacistID)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivery_boys": boys, "count": len(boys)})
}

func (dc *DeliveryBoyController) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, svcErr := dc.deliveryBoyService.Login(c.Request.Context(), &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	c.SetCookie(middleware.AuthCookieName, result.Token, dc.cookieMaxAge, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"message":              "Logged in",
		"delivery_boy":         result.DeliveryBoy,
		"must_change_password": result.MustChangePassword,
	})
}

func (dc *DeliveryBoyController) ChangePassword(c *gin.Context) {
	deliveryBoyID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if svcErr := dc.deliveryBoyService.ChangePassword(c.Request.Context(), deliveryBoyID, &req); svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (dc *DeliveryBoyController) Activate(c *gin.Context) {
	dc.setActive(c, true)
}

func (dc *DeliveryBoyController) Deactivate(c *gin.Context) {
	dc.setActive(c, false)
}

func (dc *DeliveryBoyController) setActive(c *gin.Context, active bool) {
	pharmacistID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if svcErr := dc.deliveryBoyService.SetActive(c.Request.Context(), pharmacistID, c.Param("id"), active); svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Delivery boy updated"})
}

func (dc *DeliveryBoyController) DashboardStats(c *gin.Context) {
	deliveryBoyID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	stats, svcErr := dc.deliveryBoyService.DashboardStats(c.Request.Context(), deliveryBoyID)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, stats)
}
