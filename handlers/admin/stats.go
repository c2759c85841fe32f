package admin

import (
	"errors"
	"strconv"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AdminHandler exposes the back-office reporting and operator surfaces
type AdminHandler struct {
	db       *gorm.DB
	payments *services.PaymentService
	revenue  *services.RevenueService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB, payments *services.PaymentService, revenue *services.RevenueService) *AdminHandler {
	return &AdminHandler{
		db:       db,
		payments: payments,
		revenue:  revenue,
	}
}

// Dashboard returns the global revenue dashboard
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.revenue.GetDashboardStats(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to compute dashboard stats")
	}
	return response.Success(c, stats)
}

// CatalogItemStats returns purchase counts and revenue for one item
func (h *AdminHandler) CatalogItemStats(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid item id")
	}

	stats, err := h.revenue.GetCatalogItemStats(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Catalog item not found")
		}
		return response.InternalServerError(c, "Failed to compute item stats")
	}
	return response.Success(c, stats)
}

// PlanStats returns subscriber counts per plan
func (h *AdminHandler) PlanStats(c *fiber.Ctx) error {
	stats, err := h.revenue.GetPlanStats(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to compute plan stats")
	}
	return response.Success(c, stats)
}

// UserEngagement buckets one user's activity across the payable tables
func (h *AdminHandler) UserEngagement(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid user id")
	}

	engagement, err := h.revenue.GetUserEngagement(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to compute user engagement")
	}
	return response.Success(c, engagement)
}

// UnfulfilledPayments lists succeeded payments whose fulfillment left a
// warning; the operator resolves these by hand.
func (h *AdminHandler) UnfulfilledPayments(c *fiber.Ctx) error {
	payments, err := h.payments.UnfulfilledPayments(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to list unfulfilled payments")
	}

	responses := make([]model.PaymentResponse, 0, len(payments))
	for i := range payments {
		responses = append(responses, payments[i].ToResponse())
	}
	return response.Success(c, responses)
}

// ListPayments is the paginated ledger listing with optional filters
func (h *AdminHandler) ListPayments(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	pagination := response.CalculatePagination(page, limit, 0)

	query := h.db.Model(&model.Payment{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if payableType := c.Query("payable_type"); payableType != "" {
		query = query.Where("payable_type = ?", payableType)
	}
	if email := c.Query("email"); email != "" {
		query = query.Where("customer_email = ?", email)
	}

	var total int64
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

// ListPurchases is the paginated boutique order listing
func (h *AdminHandler) ListPurchases(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	pagination := response.CalculatePagination(page, limit, 0)

	query := h.db.Model(&model.Purchase{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count purchases")
	}

	var purchases []model.Purchase
	err := query.
		Preload("CatalogItem").
		Order("created_at DESC").
		Offset((pagination.CurrentPage - 1) * pagination.PerPage).
		Limit(pagination.PerPage).
		Find(&purchases).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list purchases")
	}

	return response.Paginated(c, purchases, response.CalculatePagination(page, limit, total))
}

// ListSubscriptions is the paginated subscriber listing
func (h *AdminHandler) ListSubscriptions(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	pagination := response.CalculatePagination(page, limit, 0)

	query := h.db.Model(&model.Subscription{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if planID := c.Query("plan_id"); planID != "" {
		query = query.Where("plan_id = ?", planID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count subscriptions")
	}

	var subs []model.Subscription
	err := query.
		Preload("Plan").
		Order("created_at DESC").
		Offset((pagination.CurrentPage - 1) * pagination.PerPage).
		Limit(pagination.PerPage).
		Find(&subs).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list subscriptions")
	}

	return response.Paginated(c, subs, response.CalculatePagination(page, limit, total))
}

// MarkPaymentSucceeded is the manual reconciliation endpoint for payments the
// gateway confirmed out of band. It runs the same state machine as a webhook.
func (h *AdminHandler) MarkPaymentSucceeded(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid payment id")
	}

	payment, err := h.payments.MarkSucceeded(c.Context(), uint(id), "00", "confirmed manually")
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentNotFound):
			return response.NotFound(c, "Payment not found")
		case errors.Is(err, services.ErrInvalidTransition):
			return response.Conflict(c, "Payment cannot transition to succeeded from its current state")
		}
		return response.InternalServerError(c, "Failed to update payment")
	}

	return response.Success(c, payment.ToResponse())
}

// ExpireStalePayments manually runs the expiry sweep
func (h *AdminHandler) ExpireStalePayments(c *fiber.Ctx) error {
	expired, err := h.payments.ExpireStale(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to expire payments")
	}
	return response.Success(c, fiber.Map{"expired": expired})
}
