package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"pharmacy-backend/models"
	"pharmacy-backend/repository"
	"pharmacy-backend/services"
)

// --- Mock Repositories ---

type mockMedicineRepo struct {
	medicines map[primitive.ObjectID]*models.Medicine
	// failIncrementFor simulates a restock failure for a specific medicine.
	failIncrementFor primitive.ObjectID
}

func newMockMedicineRepo() *mockMedicineRepo {
	return &mockMedicineRepo{medicines: make(map[primitive.ObjectID]*models.Medicine)}
}

func (m *mockMedicineRepo) add(med *models.Medicine) *models.Medicine {
	if med.ID.IsZero() {
		med.ID = primitive.NewObjectID()
	}
	m.medicines[med.ID] = med
	return med
}

func (m *mockMedicineRepo) Create(_ context.Context, med *models.Medicine) error {
	m.add(med)
	return nil
}

func (m *mockMedicineRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Medicine, error) {
	med, ok := m.medicines[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *med
	return &copied, nil
}

func (m *mockMedicineRepo) List(_ context.Context, _ repository.MedicineListFilter, _, _ int) ([]models.Medicine, int64, error) {
	var out []models.Medicine
	for _, med := range m.medicines {
		out = append(out, *med)
	}
	return out, int64(len(out)), nil
}

func (m *mockMedicineRepo) Update(_ context.Context, id primitive.ObjectID, updates bson.M) error {
	med, ok := m.medicines[id]
	if !ok {
		return repository.ErrNotFound
	}
	if v, ok := updates["is_active"]; ok {
		med.IsActive = v.(bool)
	}
	if v, ok := updates["stock"]; ok {
		med.Stock = v.(int)
	}
	return nil
}

func (m *mockMedicineRepo) Delete(_ context.Context, id primitive.ObjectID) (*models.Medicine, error) {
	med, ok := m.medicines[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.medicines, id)
	return med, nil
}

func (m *mockMedicineRepo) DecrementStock(_ context.Context, id primitive.ObjectID, quantity int) (*models.Medicine, error) {
	med, ok := m.medicines[id]
	if !ok || !med.IsActive {
		return nil, repository.ErrNotFound
	}
	if med.Stock < quantity {
		return nil, repository.ErrInsufficientStock
	}
	before := *med
	med.Stock -= quantity
	return &before, nil
}

func (m *mockMedicineRepo) IncrementStock(_ context.Context, id primitive.ObjectID, quantity int) error {
	if id == m.failIncrementFor {
		return errors.New("write failed")
	}
	med, ok := m.medicines[id]
	if !ok {
		return repository.ErrNotFound
	}
	med.Stock += quantity
	return nil
}

func (m *mockMedicineRepo) LowStock(_ context.Context) ([]models.Medicine, error) {
	var out []models.Medicine
	for _, med := range m.medicines {
		if med.IsActive && med.Stock <= med.Alerts.LowStock {
			out = append(out, *med)
		}
	}
	return out, nil
}

func (m *mockMedicineRepo) WithExpiry(_ context.Context, activeOnly bool) ([]models.Medicine, error) {
	var out []models.Medicine
	for _, med := range m.medicines {
		if med.ExpiryDate == nil {
			continue
		}
		if activeOnly && !med.IsActive {
			continue
		}
		out = append(out, *med)
	}
	return out, nil
}

func (m *mockMedicineRepo) Expired(_ context.Context, now time.Time) ([]models.Medicine, error) {
	var out []models.Medicine
	for _, med := range m.medicines {
		if med.ExpiryDate != nil && med.ExpiryDate.Before(now) {
			out = append(out, *med)
		}
	}
	return out, nil
}

func (m *mockMedicineRepo) MatchActiveByName(_ context.Context, name string) ([]models.Medicine, error) {
	var out []models.Medicine
	for _, med := range m.medicines {
		if med.IsActive && med.Stock > 0 && strings.EqualFold(med.Name, name) {
			out = append(out, *med)
		}
	}
	return out, nil
}

type mockOrderRepo struct {
	orders     map[primitive.ObjectID]*models.Order
	createErr  error
	createSeen int
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[primitive.ObjectID]*models.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *models.Order) error {
	m.createSeen++
	if m.createErr != nil {
		return m.createErr
	}
	o.ID = primitive.NewObjectID()
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockOrderRepo) FindByCustomer(_ context.Context, customerID primitive.ObjectID, _, _ int) ([]models.Order, int64, error) {
	var out []models.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockOrderRepo) List(_ context.Context, _ repository.OrderListFilter, _, _ int) ([]models.Order, int64, error) {
	var out []models.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (m *mockOrderRepo) Update(_ context.Context, id primitive.ObjectID, updates bson.M) error {
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	if v, ok := updates["status"]; ok {
		o.Status = v.(models.OrderStatus)
	}
	if v, ok := updates["payment_status"]; ok {
		o.PaymentStatus = v.(models.PaymentStatus)
	}
	if v, ok := updates["pharmacist_notes"]; ok {
		o.PharmacistNotes = v.(string)
	}
	if v, ok := updates["assigned_delivery_boy"]; ok {
		boyID := v.(primitive.ObjectID)
		o.AssignedDeliveryBoy = &boyID
	}
	if v, ok := updates["delivery_date"]; ok {
		d := v.(time.Time)
		o.DeliveryDate = &d
	}
	return nil
}

func (m *mockOrderRepo) MarkCancelled(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, repository.ErrOrderTerminal
	}
	before := *o
	o.Status = models.OrderStatusCancelled
	return &before, nil
}

func (m *mockOrderRepo) Stats(_ context.Context, _ time.Time) (*models.OrderStats, error) {
	stats := &models.OrderStats{StatusCounts: make(map[models.OrderStatus]int64)}
	for _, o := range m.orders {
		stats.TotalOrders++
		stats.StatusCounts[o.Status]++
		if o.Status == models.OrderStatusDelivered && o.PaymentStatus == models.PaymentStatusPaid {
			stats.TotalRevenue += o.TotalAmount
		}
	}
	return stats, nil
}

type mockPrescriptionRepo struct {
	prescriptions map[primitive.ObjectID]*models.Prescription
}

func newMockPrescriptionRepo() *mockPrescriptionRepo {
	return &mockPrescriptionRepo{prescriptions: make(map[primitive.ObjectID]*models.Prescription)}
}

func (m *mockPrescriptionRepo) add(p *models.Prescription) *models.Prescription {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.prescriptions[p.ID] = p
	return p
}

func (m *mockPrescriptionRepo) Create(_ context.Context, p *models.Prescription) error {
	if p.Validation.Status == "" {
		p.Validation.Status = models.PrescriptionStatusPending
	}
	m.add(p)
	return nil
}

func (m *mockPrescriptionRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Prescription, error) {
	p, ok := m.prescriptions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockPrescriptionRepo) FindByCustomer(_ context.Context, customerID primitive.ObjectID, _, _ int) ([]models.Prescription, int64, error) {
	var out []models.Prescription
	for _, p := range m.prescriptions {
		if p.CustomerID == customerID {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockPrescriptionRepo) FindPending(_ context.Context, _, _ int) ([]models.Prescription, int64, error) {
	var out []models.Prescription
	for _, p := range m.prescriptions {
		if p.Validation.Status == models.PrescriptionStatusPending {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockPrescriptionRepo) Verify(_ context.Context, id primitive.ObjectID, status models.PrescriptionStatus, verifiedBy primitive.ObjectID, remarks string) error {
	p, ok := m.prescriptions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Validation.Status != models.PrescriptionStatusPending {
		return repository.ErrAlreadyVerified
	}
	now := time.Now().UTC()
	p.Validation = models.PrescriptionValidation{
		Status:     status,
		VerifiedBy: &verifiedBy,
		VerifiedAt: &now,
		Remarks:    remarks,
	}
	return nil
}

type mockUserRepo struct {
	users map[primitive.ObjectID]*models.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[primitive.ObjectID]*models.User)}
}

func (m *mockUserRepo) add(u *models.User) *models.User {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepo) Create(_ context.Context, u *models.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	m.add(u)
	return nil
}

func (m *mockUserRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) Update(_ context.Context, id primitive.ObjectID, updates bson.M) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if v, ok := updates["password"]; ok {
		u.Password = v.(string)
	}
	if v, ok := updates["name"]; ok {
		u.Name = v.(string)
	}
	return nil
}

type mockDeliveryBoyRepo struct {
	boys    map[primitive.ObjectID]*models.DeliveryBoy
	deleted []primitive.ObjectID
}

func newMockDeliveryBoyRepo() *mockDeliveryBoyRepo {
	return &mockDeliveryBoyRepo{boys: make(map[primitive.ObjectID]*models.DeliveryBoy)}
}

func (m *mockDeliveryBoyRepo) add(b *models.DeliveryBoy) *models.DeliveryBoy {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	m.boys[b.ID] = b
	return b
}

func (m *mockDeliveryBoyRepo) Create(_ context.Context, b *models.DeliveryBoy) error {
	for _, existing := range m.boys {
		if existing.Email == b.Email {
			return repository.ErrDuplicate
		}
	}
	m.add(b)
	return nil
}

func (m *mockDeliveryBoyRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.DeliveryBoy, error) {
	b, ok := m.boys[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *mockDeliveryBoyRepo) FindByEmail(_ context.Context, email string) (*models.DeliveryBoy, error) {
	for _, b := range m.boys {
		if b.Email == email {
			copied := *b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockDeliveryBoyRepo) FindByPharmacist(_ context.Context, pharmacistID primitive.ObjectID) ([]models.DeliveryBoy, error) {
	var out []models.DeliveryBoy
	for _, b := range m.boys {
		if b.PharmacistID == pharmacistID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *mockDeliveryBoyRepo) Update(_ context.Context, id primitive.ObjectID, updates bson.M) error {
	b, ok := m.boys[id]
	if !ok {
		return repository.ErrNotFound
	}
	if v, ok := updates["is_active"]; ok {
		b.IsActive = v.(bool)
	}
	if v, ok := updates["password"]; ok {
		b.Password = v.(string)
	}
	if v, ok := updates["is_password_changed"]; ok {
		b.IsPasswordChanged = v.(bool)
	}
	return nil
}

func (m *mockDeliveryBoyRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	if _, ok := m.boys[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.boys, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockPublisher struct {
	events [][]byte
	topics []string
}

func (m *mockPublisher) Publish(topic string, message []byte) error {
	m.topics = append(m.topics, topic)
	m.events = append(m.events, message)
	return nil
}

// --- Test Fixture ---

type orderFixture struct {
	medicines     *mockMedicineRepo
	orders        *mockOrderRepo
	prescriptions *mockPrescriptionRepo
	users         *mockUserRepo
	boys          *mockDeliveryBoyRepo
	publisher     *mockPublisher
	svc           services.OrderService
	customer      *models.User
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		medicines:     newMockMedicineRepo(),
		orders:        newMockOrderRepo(),
		prescriptions: newMockPrescriptionRepo(),
		users:         newMockUserRepo(),
		boys:          newMockDeliveryBoyRepo(),
		publisher:     &mockPublisher{},
	}
	f.svc = services.NewOrderService(
		f.orders, f.medicines, f.prescriptions, f.users, f.boys,
		f.publisher, "order-events", zap.NewNop(),
	)
	f.customer = f.users.add(&models.User{
		Name:    "Asha",
		Email:   "asha@example.com",
		Mobile:  "9900112233",
		Address: "12 Lake Road",
		Role:    models.RoleCustomer,
	})
	return f
}

func (f *orderFixture) addMedicine(name string, price float64, stock int, rxRequired bool) *models.Medicine {
	return f.medicines.add(&models.Medicine{
		Name:                 name,
		Category:             models.CategoryAnalgesic,
		Price:                price,
		Stock:                stock,
		PrescriptionRequired: rxRequired,
		IsActive:             true,
	})
}

// --- Create ---

func TestCreateOrderDecrementsStock(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)

	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 3}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})

	require.Nil(t, serr)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, 30.0, order.TotalAmount)
	assert.Equal(t, 2, f.medicines.medicines[med.ID].Stock)
	assert.NotEmpty(t, order.OrderNumber)
	assert.Equal(t, "Asha", order.CustomerDetails.Name)

	require.Len(t, order.Items, 1)
	assert.Equal(t, "Paracetamol 500mg", order.Items[0].Name)
	assert.Equal(t, 10.0, order.Items[0].Price)

	require.Len(t, f.publisher.topics, 1)
	assert.Equal(t, "order-events", f.publisher.topics[0])
}

func TestCreateOrderFallsBackToProfileAddress(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)

	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
	})

	require.Nil(t, serr)
	require.NotNil(t, order)
	assert.Equal(t, "12 Lake Road", order.CustomerDetails.Address)
}

func TestCreateOrderWithoutAnyAddressRejected(t *testing.T) {
	f := newOrderFixture()
	f.customer.Address = ""
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)

	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
	})

	require.NotNil(t, serr)
	assert.Nil(t, order)
	assert.Equal(t, 400, serr.StatusCode)
	assert.Equal(t, "Delivery address is required", serr.Message)
	assert.Equal(t, 5, f.medicines.medicines[med.ID].Stock)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Ibuprofen 400mg", 8, 2, false)

	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 5}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})

	require.NotNil(t, serr)
	assert.Nil(t, order)
	assert.Equal(t, 400, serr.StatusCode)
	assert.Equal(t, "Insufficient stock", serr.Message)
	assert.Equal(t, 2, f.medicines.medicines[med.ID].Stock)
	assert.Empty(t, f.orders.orders)
}

func TestCreateOrderRollsBackPartialReservation(t *testing.T) {
	f := newOrderFixture()
	first := f.addMedicine("Cetirizine 10mg", 5, 10, false)
	second := f.addMedicine("Amoxicillin 250mg", 12, 1, false)

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items: []models.OrderItemRequest{
			{MedicineID: first.ID.Hex(), Quantity: 4},
			{MedicineID: second.ID.Hex(), Quantity: 3},
		},
		PaymentMethod: models.PaymentMethodOnline,
		Address:       "12 Lake Road",
	})

	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.StatusCode)
	// The first line item was reserved before the second failed; it must
	// be returned in full.
	assert.Equal(t, 10, f.medicines.medicines[first.ID].Stock)
	assert.Equal(t, 1, f.medicines.medicines[second.ID].Stock)
	assert.Empty(t, f.orders.orders)
}

func TestCreateOrderInactiveMedicineRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Old Syrup", 4, 10, false)
	med.IsActive = false

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})

	require.NotNil(t, serr)
	assert.Equal(t, 404, serr.StatusCode)
	assert.Equal(t, 10, f.medicines.medicines[med.ID].Stock)
}

func TestCreateOrderInsertFailureRestoresStock(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Aspirin 75mg", 3, 6, false)
	f.orders.createErr = errors.New("insert failed")

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 2}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})

	require.NotNil(t, serr)
	assert.Equal(t, 500, serr.StatusCode)
	assert.Equal(t, 6, f.medicines.medicines[med.ID].Stock)
}

// --- Prescription gate ---

func TestCreateOrderRequiresPrescription(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Tramadol 50mg", 20, 10, true)

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})

	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.StatusCode)
	assert.Equal(t, "Prescription required for one or more medicines", serr.Message)
	assert.Equal(t, 10, f.medicines.medicines[med.ID].Stock)
}

func TestCreateOrderPendingPrescriptionRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Tramadol 50mg", 20, 10, true)
	rx := f.prescriptions.add(&models.Prescription{
		CustomerID: f.customer.ID,
		Validation: models.PrescriptionValidation{Status: models.PrescriptionStatusPending},
	})

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:          []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod:  models.PaymentMethodCOD,
		Address:        "12 Lake Road",
		PrescriptionID: rx.ID.Hex(),
	})

	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.StatusCode)
	assert.Equal(t, "Prescription is not approved", serr.Message)
	assert.Equal(t, 10, f.medicines.medicines[med.ID].Stock)
	assert.Empty(t, f.orders.orders)
}

func TestCreateOrderForeignPrescriptionRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Tramadol 50mg", 20, 10, true)
	other := f.users.add(&models.User{Name: "Ravi", Email: "ravi@example.com", Role: models.RoleCustomer})
	rx := f.prescriptions.add(&models.Prescription{
		CustomerID: other.ID,
		Validation: models.PrescriptionValidation{Status: models.PrescriptionStatusApproved},
	})

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:          []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod:  models.PaymentMethodCOD,
		Address:        "12 Lake Road",
		PrescriptionID: rx.ID.Hex(),
	})

	require.NotNil(t, serr)
	assert.Equal(t, 403, serr.StatusCode)
}

func TestCreateOrderExpiredPrescriptionRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Tramadol 50mg", 20, 10, true)
	past := time.Now().UTC().Add(-24 * time.Hour)
	rx := f.prescriptions.add(&models.Prescription{
		CustomerID: f.customer.ID,
		Validation: models.PrescriptionValidation{Status: models.PrescriptionStatusApproved},
		ExpiryDate: &past,
	})

	_, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:          []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod:  models.PaymentMethodCOD,
		Address:        "12 Lake Road",
		PrescriptionID: rx.ID.Hex(),
	})

	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.StatusCode)
	assert.Equal(t, "Prescription has expired", serr.Message)
}

func TestCreateOrderApprovedPrescriptionAccepted(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Tramadol 50mg", 20, 10, true)
	future := time.Now().UTC().Add(30 * 24 * time.Hour)
	rx := f.prescriptions.add(&models.Prescription{
		CustomerID: f.customer.ID,
		Validation: models.PrescriptionValidation{Status: models.PrescriptionStatusApproved},
		ExpiryDate: &future,
	})

	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:          []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 2}},
		PaymentMethod:  models.PaymentMethodCOD,
		Address:        "12 Lake Road",
		PrescriptionID: rx.ID.Hex(),
	})

	require.Nil(t, serr)
	require.NotNil(t, order.PrescriptionID)
	assert.Equal(t, rx.ID, *order.PrescriptionID)
	assert.Equal(t, 8, f.medicines.medicines[med.ID].Stock)
}

// --- Status transitions ---

func TestUpdateStatusLegalChain(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	chain := []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusPreparing,
		models.OrderStatusReady,
		models.OrderStatusDelivered,
	}
	for _, next := range chain {
		updated, serr := f.svc.UpdateStatus(context.Background(), order.ID.Hex(), &models.UpdateOrderStatusRequest{Status: next})
		require.Nil(t, serr, "transition to %s", next)
		assert.Equal(t, next, updated.Status)
	}

	final := f.orders.orders[order.ID]
	assert.Equal(t, models.OrderStatusDelivered, final.Status)
	assert.NotNil(t, final.DeliveryDate)
}

func TestUpdateStatusIllegalJumpRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	_, uerr := f.svc.UpdateStatus(context.Background(), order.ID.Hex(), &models.UpdateOrderStatusRequest{
		Status: models.OrderStatusDelivered,
	})
	require.NotNil(t, uerr)
	assert.Equal(t, 400, uerr.StatusCode)
	assert.Contains(t, uerr.Message, "Illegal status transition")
	assert.Equal(t, models.OrderStatusPending, f.orders.orders[order.ID].Status)
}

func TestUpdateStatusNotesWithoutTransition(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	notes := "out of the usual brand, substituted generic"
	updated, uerr := f.svc.UpdateStatus(context.Background(), order.ID.Hex(), &models.UpdateOrderStatusRequest{
		PharmacistNotes: &notes,
	})
	require.Nil(t, uerr)
	assert.Equal(t, models.OrderStatusPending, updated.Status)
	assert.Equal(t, notes, f.orders.orders[order.ID].PharmacistNotes)
}

func TestUpdatePaymentStatusIndependentOfOrderStatus(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	updated, perr := f.svc.UpdatePaymentStatus(context.Background(), order.ID.Hex(), models.PaymentStatusPaid)
	require.Nil(t, perr)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, updated.Status)
}

// --- Cancellation ---

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 3}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)
	require.Equal(t, 2, f.medicines.medicines[med.ID].Stock)

	cancelled, cerr := f.svc.Cancel(context.Background(), f.customer.ID.Hex(), order.ID.Hex())
	require.Nil(t, cerr)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.medicines.medicines[med.ID].Stock)
	assert.Equal(t, models.OrderStatusCancelled, f.orders.orders[order.ID].Status)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 2}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)
	f.orders.orders[order.ID].Status = models.OrderStatusDelivered

	_, cerr := f.svc.Cancel(context.Background(), f.customer.ID.Hex(), order.ID.Hex())
	require.NotNil(t, cerr)
	assert.Equal(t, 400, cerr.StatusCode)
	// Stock stays at its post-reservation level.
	assert.Equal(t, 3, f.medicines.medicines[med.ID].Stock)
}

func TestCancelByOtherCustomerRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	other := f.users.add(&models.User{Name: "Ravi", Email: "ravi@example.com", Role: models.RoleCustomer})
	_, cerr := f.svc.Cancel(context.Background(), other.ID.Hex(), order.ID.Hex())
	require.NotNil(t, cerr)
	assert.Equal(t, 403, cerr.StatusCode)
	assert.Equal(t, models.OrderStatusPending, f.orders.orders[order.ID].Status)
}

func TestCancelSecondTimeRejected(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 2}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	_, cerr := f.svc.Cancel(context.Background(), f.customer.ID.Hex(), order.ID.Hex())
	require.Nil(t, cerr)
	require.Equal(t, 5, f.medicines.medicines[med.ID].Stock)

	_, cerr = f.svc.Cancel(context.Background(), f.customer.ID.Hex(), order.ID.Hex())
	require.NotNil(t, cerr)
	assert.Equal(t, 400, cerr.StatusCode)
	// No double restock.
	assert.Equal(t, 5, f.medicines.medicines[med.ID].Stock)
}

// --- Access and assignment ---

func TestGetByIDCustomerScoping(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	got, gerr := f.svc.GetByID(context.Background(), f.customer.ID.Hex(), models.RoleCustomer, order.ID.Hex())
	require.Nil(t, gerr)
	assert.Equal(t, order.ID, got.ID)

	_, gerr = f.svc.GetByID(context.Background(), primitive.NewObjectID().Hex(), models.RoleCustomer, order.ID.Hex())
	require.NotNil(t, gerr)
	assert.Equal(t, 403, gerr.StatusCode)

	_, gerr = f.svc.GetByID(context.Background(), primitive.NewObjectID().Hex(), models.RolePharmacist, order.ID.Hex())
	assert.Nil(t, gerr)
}

func TestAssignDeliveryBoy(t *testing.T) {
	f := newOrderFixture()
	med := f.addMedicine("Paracetamol 500mg", 10, 5, false)
	order, serr := f.svc.Create(context.Background(), f.customer.ID.Hex(), &models.CreateOrderRequest{
		Items:         []models.OrderItemRequest{{MedicineID: med.ID.Hex(), Quantity: 1}},
		PaymentMethod: models.PaymentMethodCOD,
		Address:       "12 Lake Road",
	})
	require.Nil(t, serr)

	boy := f.boys.add(&models.DeliveryBoy{
		Name:     "Kiran",
		Email:    "kiran@example.com",
		IsActive: true,
	})

	aerr := f.svc.AssignDeliveryBoy(context.Background(), order.ID.Hex(), boy.ID.Hex())
	require.Nil(t, aerr)
	require.NotNil(t, f.orders.orders[order.ID].AssignedDeliveryBoy)
	assert.Equal(t, boy.ID, *f.orders.orders[order.ID].AssignedDeliveryBoy)

	boy.IsActive = false
	aerr = f.svc.AssignDeliveryBoy(context.Background(), order.ID.Hex(), boy.ID.Hex())
	require.NotNil(t, aerr)
	assert.Equal(t, 400, aerr.StatusCode)
}
