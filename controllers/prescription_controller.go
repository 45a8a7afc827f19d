package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacy-backend/middleware"
	"pharmacy-backend/models"
	"pharmacy-backend/services"
)

type PrescriptionController struct {
	prescriptionService services.PrescriptionService
}

func NewPrescriptionController(prescriptionService services.PrescriptionService) *PrescriptionController {
	return &PrescriptionController{prescriptionService: prescriptionService}
}

func (pc *PrescriptionController) Create(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	prescription, svcErr := pc.prescriptionService.Create(c.Request.Context(), userID, &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Prescription submitted", "prescription": prescription})
}

func (pc *PrescriptionController) GetByID(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	prescription, svcErr := pc.prescriptionService.GetByID(c.Request.Context(), userID, middleware.GetRole(c), c.Param("id"))
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prescription": prescription})
}

func (pc *PrescriptionController) ListMine(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	page, limit := parsePaginationParams(c)
	result, svcErr := pc.prescriptionService.ListMine(c.Request.Context(), userID, page, limit)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (pc *PrescriptionController) ListPending(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	result, svcErr := pc.prescriptionService.ListPending(c.Request.Context(), page, limit)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Verify applies the one-shot pharmacist approval or rejection.
func (pc *PrescriptionController) Verify(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.VerifyPrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if svcErr := pc.prescriptionService.Verify(c.Request.Context(), userID, c.Param("id"), &req); svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prescription " + string(req.Status)})
}

// UploadURL hands the client a presigned PUT URL for a prescription file.
func (pc *PrescriptionController) UploadURL(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	filename := c.Query("filename")
	result, svcErr := pc.prescriptionService.FileUploadURL(c.Request.Context(), userID, filename)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	c.JSON(http.StatusOK, result)
}
