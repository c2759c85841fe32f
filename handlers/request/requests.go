package request

import (
	"errors"
	"strconv"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/utils/middleware"
	"github.com/afrilegal/juris-api/utils/response"
	"github.com/afrilegal/juris-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequestHandler handles document request submission and tracking
type RequestHandler struct {
	db         *gorm.DB
	references *services.ReferenceService
	validator  *validation.Validator
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(db *gorm.DB, references *services.ReferenceService) *RequestHandler {
	return &RequestHandler{
		db:         db,
		references: references,
		validator:  validation.NewValidator(),
	}
}

// CreateRequest is the submission form for a document request. Data carries
// the service-specific form fields, amount included, as-is.
type CreateRequest struct {
	ServiceCode string                 `json:"service_code" validate:"required"`
	Email       string                 `json:"email" validate:"required,email"`
	Data        map[string]interface{} `json:"data"`
}

// Create registers a new document request and assigns its reference. The
// reference sequence bumps inside the insert transaction, so a collision on
// the unique index can only come from a concurrent writer and is retried.
func (h *RequestHandler) Create(c *fiber.Ctx) error {
	var req CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	request := model.Request{
		ServiceCode:   validation.SanitizeString(req.ServiceCode),
		Status:        model.RequestStatusNew,
		PaymentStatus: model.RequestPaymentPending,
		CustomerEmail: validation.SanitizeString(req.Email),
		Data:          datatypes.JSONMap(req.Data),
	}
	if userID, ok := middleware.GetUserID(c); ok {
		request.UserID = &userID
	}

	err := services.WithUniqueRetry(func(attempt int) error {
		return h.db.Transaction(func(tx *gorm.DB) error {
			ref, err := h.references.NextRequestRef(tx)
			if err != nil {
				return err
			}
			request.Ref = ref
			request.ID = 0
			return tx.Create(&request).Error
		})
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create request")
	}

	return response.Created(c, request)
}

// Get returns one request by its public reference. Anonymous requests are
// readable by reference alone; user-owned ones require the owner or an admin.
func (h *RequestHandler) Get(c *fiber.Ctx) error {
	ref := c.Params("ref")

	var request model.Request
	if err := h.db.Where("ref = ?", ref).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Request not found")
		}
		return response.InternalServerError(c, "Failed to load request")
	}

	if request.UserID != nil {
		userID, ok := middleware.GetUserID(c)
		role, _ := c.Locals("user_role").(string)
		if role != "admin" && (!ok || userID != *request.UserID) {
			return response.Forbidden(c, "You do not have access to this request")
		}
	}

	return response.Success(c, request)
}

// MyRequests lists the authenticated user's requests, including those
// submitted anonymously with the same email before registering.
func (h *RequestHandler) MyRequests(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	email, _ := middleware.GetUserEmail(c)

	var requests []model.Request
	err := h.db.
		Where("user_id = ? OR (user_id IS NULL AND customer_email = ?)", userID, email).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list requests")
	}

	return response.Success(c, requests)
}

// UpdateStatusRequest carries an admin workflow status change
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=nouvelle 'en traitement' traitée"`
}

// UpdateStatus moves a request through its back-office workflow. The payment
// status mirror is owned by the fulfillment hooks and is not writable here.
func (h *RequestHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid request id")
	}

	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var request model.Request
	if err := h.db.First(&request, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Request not found")
		}
		return response.InternalServerError(c, "Failed to load request")
	}

	request.Status = req.Status
	if err := h.db.Save(&request).Error; err != nil {
		return response.InternalServerError(c, "Failed to update request")
	}

	return response.Success(c, request)
}

// List is the admin listing with pagination and optional status filters
func (h *RequestHandler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	pagination := response.CalculatePagination(page, limit, 0)

	query := h.db.Model(&model.Request{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if paymentStatus := c.Query("payment_status"); paymentStatus != "" {
		query = query.Where("payment_status = ?", paymentStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count requests")
	}

	var requests []model.Request
	err := query.
		Order("created_at DESC").
		Offset((pagination.CurrentPage - 1) * pagination.PerPage).
		Limit(pagination.PerPage).
		Find(&requests).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list requests")
	}

	return response.Paginated(c, requests, response.CalculatePagination(page, limit, total))
}
