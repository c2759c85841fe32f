package payment

import (
	"errors"
	"strconv"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/utils/middleware"
	"github.com/afrilegal/juris-api/utils/response"
	"github.com/afrilegal/juris-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// PaymentHandler handles payment initiation, gateway returns and the
// customer-facing payment surfaces.
type PaymentHandler struct {
	db        *gorm.DB
	payments  *services.PaymentService
	validator *validation.Validator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		db:        db,
		payments:  payments,
		validator: validation.NewValidator(),
	}
}

// InitiateRequest is the checkout form posted against a payable resource.
// Field names follow the gateway's camelCase vocabulary, which the hosted
// payment pages post back verbatim.
type InitiateRequest struct {
	Channel   string `json:"channel" validate:"omitempty,oneof=card mobile_money bank_transfer"`
	Email     string `json:"customerEmail" validate:"required,email"`
	FirstName string `json:"customerFirstName" validate:"required"`
	LastName  string `json:"customerLastName"`
	Phone     string `json:"customerPhoneNumber"`
	Repay     bool   `json:"repay"`
}

// Initiate opens a payment session for any payable resource. The path names
// the resource; the dispatcher decides how its fulfillment behaves later.
func (h *PaymentHandler) Initiate(c *fiber.Ctx) error {
	payableType := c.Params("payableType")
	payableID, err := strconv.ParseUint(c.Params("payableId"), 10, 32)
	if err != nil || payableID == 0 {
		return response.BadRequest(c, "Invalid payable id")
	}

	var req InitiateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	input := services.InitiateInput{
		Channel:           req.Channel,
		CustomerEmail:     validation.SanitizeString(req.Email),
		CustomerFirstName: validation.SanitizeString(req.FirstName),
		CustomerLastName:  validation.SanitizeString(req.LastName),
		CustomerPhone:     validation.SanitizeString(req.Phone),
		Repay:             req.Repay,
	}
	if userID, ok := middleware.GetUserID(c); ok {
		input.UserID = &userID
	}

	result, err := h.payments.Initiate(c.Context(), payableType, uint(payableID), input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownPayableType):
			return response.BadRequest(c, "Unknown payable type")
		case errors.Is(err, gorm.ErrRecordNotFound):
			return response.NotFound(c, "Payable resource not found")
		case errors.Is(err, services.ErrAlreadyPaid):
			return response.Conflict(c, "This resource has already been paid")
		case errors.Is(err, services.ErrAmountUnresolved):
			return response.UnprocessableEntity(c, "Unable to determine the amount to pay")
		}
		return response.InternalServerError(c, "Failed to initiate payment")
	}

	return response.Success(c, result)
}

// firstQuery returns the first non-empty value among aliased query
// parameters. The provider's return pages are inconsistent about casing and
// naming across payment channels, so every alias observed in callbacks is
// accepted.
func firstQuery(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}

// Return processes the gateway redirect or webhook. The provider retries
// this endpoint, so an unknown reference answers a generic unknown status
// instead of an error the retry loop would hammer on.
func (h *PaymentHandler) Return(c *fiber.Ctx) error {
	params := services.ReturnParams{
		Reference:    firstQuery(c, "reference", "referenceNumber"),
		SessionID:    firstQuery(c, "sessionId", "sessionid"),
		ResponseCode: firstQuery(c, "responseCode", "responsecode"),
		Message:      c.Query("message"),
		Hash:         firstQuery(c, "hash", "hashcode"),
	}

	payment, err := h.payments.HandleReturn(c.Context(), params)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			return response.Success(c, fiber.Map{"status": "unknown"})
		}
		return response.InternalServerError(c, "Failed to process payment return")
	}

	return response.Success(c, payment.ToResponse())
}

// Status returns the current ledger entry for a reference
func (h *PaymentHandler) Status(c *fiber.Ctx) error {
	reference := c.Params("reference")
	if reference == "" {
		return response.BadRequest(c, "Payment reference is required")
	}

	payment, err := h.payments.FindByReference(reference)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			return response.NotFound(c, "Payment not found")
		}
		return response.InternalServerError(c, "Failed to load payment")
	}

	return response.Success(c, payment.ToResponse())
}

// MyPayments lists the authenticated user's payments, matched by customer
// email so guest checkouts made before registering still show up.
func (h *PaymentHandler) MyPayments(c *fiber.Ctx) error {
	email, ok := middleware.GetUserEmail(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	pagination := response.CalculatePagination(page, limit, 0)

	var total int64
	query := h.db.Model(&model.Payment{}).Where("customer_email = ?", email)
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count payments")
	}

	var payments []model.Payment
	err := query.
		Order("created_at DESC").
		Offset((pagination.CurrentPage - 1) * pagination.PerPage).
		Limit(pagination.PerPage).
		Find(&payments).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list payments")
	}

	responses := make([]model.PaymentResponse, 0, len(payments))
	for i := range payments {
		responses = append(responses, payments[i].ToResponse())
	}

	return response.Paginated(c, responses, response.CalculatePagination(page, limit, total))
}

// Invoice returns the invoice document for a payment. Only a succeeded
// payment has an invoice; anything else is a 404, not a partial document.
func (h *PaymentHandler) Invoice(c *fiber.Ctx) error {
	reference := c.Params("reference")

	payment, err := h.payments.FindByReference(reference)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			return response.NotFound(c, "Payment not found")
		}
		return response.InternalServerError(c, "Failed to load payment")
	}

	if payment.Status != model.PaymentStatusSucceeded {
		return response.NotFound(c, "No invoice available for this payment")
	}

	return response.Success(c, fiber.Map{
		"reference":   payment.Reference,
		"label":       payment.MetaString("label"),
		"amount":      payment.Amount,
		"currency":    payment.Currency,
		"channel":     payment.Channel,
		"customer":    payment.CustomerFirstName + " " + payment.CustomerLastName,
		"email":       payment.CustomerEmail,
		"paid_at":     payment.PaidAt,
		"receipt_key": payment.MetaString("receipt_key"),
	})
}
