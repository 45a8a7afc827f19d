package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacy-backend/models"
	"pharmacy-backend/repository"
	"pharmacy-backend/services"
)

type MedicineController struct {
	medicineService     services.MedicineService
	prescriptionService services.PrescriptionService
}

func NewMedicineController(medicineService services.MedicineService, prescriptionService services.PrescriptionService) *MedicineController {
	return &MedicineController{
		medicineService:     medicineService,
		prescriptionService: prescriptionService,
	}
}

func (mc *MedicineController) Create(c *gin.Context) {
	var req models.CreateMedicineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	medicine, svcErr := mc.medicineService.Create(c.Request.Context(), &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Medicine created successfully", "medicine": medicine})
}

func (mc *MedicineController) GetByID(c *gin.Context) {
	medicine, svcErr := mc.medicineService.GetByID(c.Request.Context(), c.Param("id"))
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, medicine)
}

func (mc *MedicineController) List(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	filter := repository.MedicineListFilter{
		Search:     c.Query("search"),
		Category:   models.MedicineCategory(c.Query("category")),
		ActiveOnly: c.DefaultQuery("active", "true") == "true",
	}

	result, svcErr := mc.medicineService.List(c.Request.Context(), filter, page, limit)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (mc *MedicineController) Update(c *gin.Context) {
	var req models.UpdateMedicineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	medicine, svcErr := mc.medicineService.Update(c.Request.Context(), c.Param("id"), &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Medicine updated successfully", "medicine": medicine})
}

func (mc *MedicineController) UpdateStock(c *gin.Context) {
	var req models.UpdateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	medicine, svcErr := mc.medicineService.UpdateStock(c.Request.Context(), c.Param("id"), req.Stock)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock updated successfully", "medicine": medicine})
}

func (mc *MedicineController) Deactivate(c *gin.Context) {
	if svcErr := mc.medicineService.Deactivate(c.Request.Context(), c.Param("id")); svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Medicine deactivated successfully"})
}

func (mc *MedicineController) Delete(c *gin.Context) {
	if svcErr := mc.medicineService.Delete(c.Request.Context(), c.Param("id")); svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Medicine deleted successfully"})
}

func (mc *MedicineController) LowStock(c *gin.Context) {
	medicines, svcErr := mc.medicineService.LowStock(c.Request.Context())
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"medicines": medicines, "count": len(medicines)})
}

func (mc *MedicineController) NearExpiry(c *gin.Context) {
	medicines, svcErr := mc.medicineService.NearExpiry(c.Request.Context())
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"medicines": medicines, "count": len(medicines)})
}

func (mc *MedicineController) Expired(c *gin.Context) {
	medicines, svcErr := mc.medicineService.Expired(c.Request.Context())
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"medicines": medicines, "count": len(medicines)})
}

// ByPrescription returns active, in-stock medicines matching an approved
// prescription's mentioned names.
func (mc *MedicineController) ByPrescription(c *gin.Context) {
	medicines, svcErr := mc.prescriptionService.MatchMedicines(c.Request.Context(), c.Param("id"))
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"medicines": medicines, "count": len(medicines)})
}
