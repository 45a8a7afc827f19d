package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pharmacy-backend/controllers"
	"pharmacy-backend/models"
	"pharmacy-backend/repository"
	"pharmacy-backend/services"
)

func init() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("medicine_category", func(fl validator.FieldLevel) bool {
			return models.MedicineCategory(fl.Field().String()).Valid()
		})
	}
}

// --- Mock MedicineService ---

type mockMedicineService struct {
	createFn     func(ctx context.Context, req *models.CreateMedicineRequest) (*models.Medicine, *services.ServiceError)
	getFn        func(ctx context.Context, id string) (*models.Medicine, *services.ServiceError)
	listFn       func(ctx context.Context, filter repository.MedicineListFilter, page, limit int) (*services.MedicineListResponse, *services.ServiceError)
	updateFn     func(ctx context.Context, id string, req *models.UpdateMedicineRequest) (*models.Medicine, *services.ServiceError)
	stockFn      func(ctx context.Context, id string, stock int) (*models.Medicine, *services.ServiceError)
	deactivateFn func(ctx context.Context, id string) *services.ServiceError
	deleteFn     func(ctx context.Context, id string) *services.ServiceError
	lowStockFn   func(ctx context.Context) ([]models.Medicine, *services.ServiceError)
	nearExpiryFn func(ctx context.Context) ([]models.Medicine, *services.ServiceError)
	expiredFn    func(ctx context.Context) ([]models.Medicine, *services.ServiceError)
}

func (m *mockMedicineService) Create(ctx context.Context, req *models.CreateMedicineRequest) (*models.Medicine, *services.ServiceError) {
	return m.createFn(ctx, req)
}
func (m *mockMedicineService) GetByID(ctx context.Context, id string) (*models.Medicine, *services.ServiceError) {
	return m.getFn(ctx, id)
}
func (m *mockMedicineService) List(ctx context.Context, filter repository.MedicineListFilter, page, limit int) (*services.MedicineListResponse, *services.ServiceError) {
	return m.listFn(ctx, filter, page, limit)
}
func (m *mockMedicineService) Update(ctx context.Context, id string, req *models.UpdateMedicineRequest) (*models.Medicine, *services.ServiceError) {
	return m.updateFn(ctx, id, req)
}
func (m *mockMedicineService) UpdateStock(ctx context.Context, id string, stock int) (*models.Medicine, *services.ServiceError) {
	return m.stockFn(ctx, id, stock)
}
func (m *mockMedicineService) Deactivate(ctx context.Context, id string) *services.ServiceError {
	return m.deactivateFn(ctx, id)
}
func (m *mockMedicineService) Delete(ctx context.Context, id string) *services.ServiceError {
	return m.deleteFn(ctx, id)
}
func (m *mockMedicineService) LowStock(ctx context.Context) ([]models.Medicine, *services.ServiceError) {
	return m.lowStockFn(ctx)
}
func (m *mockMedicineService) NearExpiry(ctx context.Context) ([]models.Medicine, *services.ServiceError) {
	return m.nearExpiryFn(ctx)
}
func (m *mockMedicineService) Expired(ctx context.Context) ([]models.Medicine, *services.ServiceError) {
	return m.expiredFn(ctx)
}

// --- Mock PrescriptionService (only MatchMedicines is exercised here) ---

type mockPrescriptionService struct {
	matchFn func(ctx context.Context, prescriptionID string) ([]models.Medicine, *services.ServiceError)
}

func (m *mockPrescriptionService) Create(ctx context.Context, customerID string, req *models.CreatePrescriptionRequest) (*models.Prescription, *services.ServiceError) {
	return nil, nil
}
func (m *mockPrescriptionService) GetByID(ctx context.Context, requesterID string, role models.Role, id string) (*models.Prescription, *services.ServiceError) {
	return nil, nil
}
func (m *mockPrescriptionService) ListMine(ctx context.Context, customerID string, page, limit int) (*services.PrescriptionListResponse, *services.ServiceError) {
	return nil, nil
}
func (m *mockPrescriptionService) ListPending(ctx context.Context, page, limit int) (*services.PrescriptionListResponse, *services.ServiceError) {
	return nil, nil
}
func (m *mockPrescriptionService) Verify(ctx context.Context, verifierID, prescriptionID string, req *models.VerifyPrescriptionRequest) *services.ServiceError {
	return nil
}
func (m *mockPrescriptionService) MatchMedicines(ctx context.Context, prescriptionID string) ([]models.Medicine, *services.ServiceError) {
	return m.matchFn(ctx, prescriptionID)
}
func (m *mockPrescriptionService) FileUploadURL(ctx context.Context, customerID, filename string) (*services.UploadURLResponse, *services.ServiceError) {
	return nil, nil
}

// --- Helpers ---

func setupRouter(med services.MedicineService, rx services.PrescriptionService) *gin.Engine {
	r := gin.New()
	mc := controllers.NewMedicineController(med, rx)

	r.Use(func(c *gin.Context) {
		c.Set("userID", primitive.NewObjectID().Hex())
		c.Set("role", string(models.RolePharmacist))
		c.Next()
	})

	r.POST("/medicines", mc.Create)
	r.GET("/medicines", mc.List)
	r.GET("/medicines/low-stock", mc.LowStock)
	r.GET("/medicines/by-prescription/:id", mc.ByPrescription)
	r.GET("/medicines/:id", mc.GetByID)
	r.PATCH("/medicines/:id/stock", mc.UpdateStock)
	r.DELETE("/medicines/:id", mc.Delete)
	return r
}

func sampleMedicine(name string) *models.Medicine {
	return &models.Medicine{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Category:  models.CategoryAnalgesic,
		Price:     12.5,
		Stock:     40,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// --- Tests ---

func TestController_CreateMedicine_Success(t *testing.T) {
	svc := &mockMedicineService{
		createFn: func(_ context.Context, req *models.CreateMedicineRequest) (*models.Medicine, *services.ServiceError) {
			m := sampleMedicine(req.Name)
			m.Category = models.MedicineCategory(req.Category)
			return m, nil
		},
	}
	r := setupRouter(svc, &mockPrescriptionService{})

	body, _ := json.Marshal(models.CreateMedicineRequest{
		Name:     "Paracetamol 500mg",
		Category: string(models.CategoryAnalgesic),
		Price:    12.5,
		Stock:    40,
	})
	req, _ := http.NewRequest(http.MethodPost, "/medicines", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NotNil(t, resp["medicine"])
}

func TestController_CreateMedicine_InvalidCategory(t *testing.T) {
	svc := &mockMedicineService{}
	r := setupRouter(svc, &mockPrescriptionService{})

	req, _ := http.NewRequest(http.MethodPost, "/medicines",
		bytes.NewBufferString(`{"name":"Mystery Pills","category":"homeopathy","price":5,"stock":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestController_GetMedicine_NotFound(t *testing.T) {
	svc := &mockMedicineService{
		getFn: func(_ context.Context, _ string) (*models.Medicine, *services.ServiceError) {
			return nil, &services.ServiceError{StatusCode: http.StatusNotFound, Message: "Medicine not found"}
		},
	}
	r := setupRouter(svc, &mockPrescriptionService{})

	req, _ := http.NewRequest(http.MethodGet, "/medicines/"+primitive.NewObjectID().Hex(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "Medicine not found", resp["error"])
}

func TestController_ListMedicines_ForwardsFilters(t *testing.T) {
	var gotFilter repository.MedicineListFilter
	var gotPage, gotLimit int
	svc := &mockMedicineService{
		listFn: func(_ context.Context, filter repository.MedicineListFilter, page, limit int) (*services.MedicineListResponse, *services.ServiceError) {
			gotFilter, gotPage, gotLimit = filter, page, limit
			return &services.MedicineListResponse{
				Medicines: []models.Medicine{*sampleMedicine("Cetirizine 10mg")},
				Meta:      services.Meta{Page: page, Limit: limit, Total: 1, TotalPages: 1},
			}, nil
		},
	}
	r := setupRouter(svc, &mockPrescriptionService{})

	req, _ := http.NewRequest(http.MethodGet, "/medicines?search=cet&category=antihistamine&page=2&limit=5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cet", gotFilter.Search)
	assert.Equal(t, models.CategoryAntihistamine, gotFilter.Category)
	assert.True(t, gotFilter.ActiveOnly)
	assert.Equal(t, 2, gotPage)
	assert.Equal(t, 5, gotLimit)
}

func TestController_UpdateStock_Success(t *testing.T) {
	svc := &mockMedicineService{
		stockFn: func(_ context.Context, _ string, stock int) (*models.Medicine, *services.ServiceError) {
			m := sampleMedicine("Amoxicillin 250mg")
			m.Stock = stock
			return m, nil
		},
	}
	r := setupRouter(svc, &mockPrescriptionService{})

	req, _ := http.NewRequest(http.MethodPatch, "/medicines/"+primitive.NewObjectID().Hex()+"/stock",
		bytes.NewBufferString(`{"stock":75}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Medicine models.Medicine `json:"medicine"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, 75, resp.Medicine.Stock)
}

func TestController_DeleteMedicine_Success(t *testing.T) {
	deleted := ""
	svc := &mockMedicineService{
		deleteFn: func(_ context.Context, id string) *services.ServiceError {
			deleted = id
			return nil
		},
	}
	r := setupRouter(svc, &mockPrescriptionService{})

	id := primitive.NewObjectID().Hex()
	req, _ := http.NewRequest(http.MethodDelete, "/medicines/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, deleted)
}

func TestController_LowStock(t *testing.T) {
	svc := &mockMedicineService{
		lowStockFn: func(_ context.Context) ([]models.Medicine, *services.ServiceError) {
			return []models.Medicine{*sampleMedicine("Insulin Glargine"), *sampleMedicine("Salbutamol Inhaler")}, nil
		},
	}
	r := setupRouter(svc, &mockPrescriptionService{})

	req, _ := http.NewRequest(http.MethodGet, "/medicines/low-stock", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, float64(2), resp["count"])
}

func TestController_ByPrescription_GateRejected(t *testing.T) {
	rx := &mockPrescriptionService{
		matchFn: func(_ context.Context, _ string) ([]models.Medicine, *services.ServiceError) {
			return nil, &services.ServiceError{StatusCode: http.StatusBadRequest, Message: "Prescription is not approved"}
		},
	}
	r := setupRouter(&mockMedicineService{}, rx)

	req, _ := http.NewRequest(http.MethodGet, "/medicines/by-prescription/"+primitive.NewObjectID().Hex(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "Prescription is not approved", resp["error"])
}
