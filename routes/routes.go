package routes

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"pharmacy-backend/controllers"
	"pharmacy-backend/middleware"
	"pharmacy-backend/models"
	"pharmacy-backend/services"
)

// Register wires every route group onto the engine.
func Register(
	r *gin.Engine,
	tokens *services.TokenService,
	auth *controllers.AuthController,
	medicines *controllers.MedicineController,
	orders *controllers.OrderController,
	prescriptions *controllers.PrescriptionController,
	deliveryBoys *controllers.DeliveryBoyController,
) {
	authed := middleware.RequireAuth(tokens)
	pharmacist := middleware.RequireRole(models.RolePharmacist, models.RoleAdmin)
	customer := middleware.RequireRole(models.RoleCustomer)
	loginLimit := middleware.RateLimit(rate.Limit(1), 10)

	authRoutes := r.Group("/api/auth")
	{
		authRoutes.POST("/register", loginLimit, auth.Register)
		authRoutes.POST("/login", loginLimit, auth.Login)
		authRoutes.POST("/logout", auth.Logout)
		authRoutes.POST("/forgot-password", loginLimit, auth.ForgotPassword)
		authRoutes.POST("/reset-password", loginLimit, auth.ResetPassword)
		authRoutes.GET("/profile", authed, auth.GetProfile)
		authRoutes.PATCH("/profile", authed, auth.UpdateProfile)
	}

	medicineRoutes := r.Group("/api/medicines")
	{
		medicineRoutes.GET("", authed, medicines.List)
		medicineRoutes.GET("/:id", authed, medicines.GetByID)
		medicineRoutes.POST("", authed, pharmacist, medicines.Create)
		medicineRoutes.PATCH("/:id", authed, pharmacist, medicines.Update)
		medicineRoutes.PATCH("/:id/stock", authed, pharmacist, medicines.UpdateStock)
		medicineRoutes.PATCH("/:id/deactivate", authed, pharmacist, medicines.Deactivate)
		medicineRoutes.DELETE("/:id", authed, pharmacist, medicines.Delete)
		medicineRoutes.GET("/by-prescription/:id", authed, medicines.ByPrescription)
	}

	alertRoutes := r.Group("/api/pharma", authed, pharmacist)
	{
		alertRoutes.GET("/low-stock", medicines.LowStock)
		alertRoutes.GET("/near-expiry", medicines.NearExpiry)
		alertRoutes.GET("/expired", medicines.Expired)
	}

	orderRoutes := r.Group("/api/orders", authed)
	{
		orderRoutes.POST("", customer, orders.Create)
		orderRoutes.GET("/mine", customer, orders.ListMine)
		orderRoutes.GET("", pharmacist, orders.List)
		orderRoutes.GET("/stats", pharmacist, orders.Stats)
		orderRoutes.GET("/:id", orders.GetByID)
		orderRoutes.PATCH("/:id/status", pharmacist, orders.UpdateStatus)
		orderRoutes.PATCH("/:id/payment", pharmacist, orders.UpdatePayment)
		orderRoutes.PATCH("/:id/assign", pharmacist, orders.AssignDeliveryBoy)
		orderRoutes.PATCH("/:id/cancel", customer, orders.Cancel)
	}

	prescriptionRoutes := r.Group("/api/prescriptions", authed)
	{
		prescriptionRoutes.POST("", customer, prescriptions.Create)
		prescriptionRoutes.GET("/mine", customer, prescriptions.ListMine)
		prescriptionRoutes.GET("/upload-url", customer, prescriptions.UploadURL)
		prescriptionRoutes.GET("/pending", pharmacist, prescriptions.ListPending)
		prescriptionRoutes.GET("/:id", prescriptions.GetByID)
		prescriptionRoutes.PATCH("/:id/verify", pharmacist, prescriptions.Verify)
	}

	deliveryRoutes := r.Group("/api/delivery-boys")
	{
		deliveryRoutes.POST("/login", loginLimit, deliveryBoys.Login)
		deliveryRoutes.POST("", authed, pharmacist, deliveryBoys.Create)
		deliveryRoutes.GET("", authed, pharmacist, deliveryBoys.List)
		deliveryRoutes.PATCH("/:id/activate", authed, pharmacist, deliveryBoys.Activate)
		deliveryRoutes.PATCH("/:id/deactivate", authed, pharmacist, deliveryBoys.Deactivate)
		deliveryRoutes.POST("/change-password", authed, middleware.RequireRole(models.RoleDeliveryBoy), deliveryBoys.ChangePassword)
		deliveryRoutes.GET("/dashboard", authed, middleware.RequireRole(models.RoleDeliveryBoy), deliveryBoys.DashboardStats)
	}
}
