package subscription

import (
	"errors"
	"strconv"
	"time"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/utils/middleware"
	"github.com/afrilegal/juris-api/utils/response"
	"github.com/afrilegal/juris-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SubscriptionHandler handles subscription plans and subscriber lifecycle
type SubscriptionHandler struct {
	db         *gorm.DB
	references *services.ReferenceService
	payments   *services.PaymentService
	validator  *validation.Validator
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(db *gorm.DB, references *services.ReferenceService, payments *services.PaymentService) *SubscriptionHandler {
	return &SubscriptionHandler{
		db:         db,
		references: references,
		payments:   payments,
		validator:  validation.NewValidator(),
	}
}

// ListPlans returns the active subscription plans
func (h *SubscriptionHandler) ListPlans(c *fiber.Ctx) error {
	var plans []model.Plan
	if err := h.db.Where("active = ?", true).Order("code").Find(&plans).Error; err != nil {
		return response.InternalServerError(c, "Failed to list plans")
	}
	return response.Success(c, plans)
}

// CreatePlanRequest is the admin form for a new plan
type CreatePlanRequest struct {
	Name         string `json:"name" validate:"required,min=3"`
	Description  string `json:"description"`
	MonthlyPrice int64  `json:"monthly_price" validate:"gte=0"`
	YearlyPrice  int64  `json:"yearly_price" validate:"gte=0"`
}

// CreatePlan registers a new plan with a generated SRV code
func (h *SubscriptionHandler) CreatePlan(c *fiber.Ctx) error {
	var req CreatePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.MonthlyPrice == 0 && req.YearlyPrice == 0 {
		return response.BadRequest(c, "A plan needs a monthly or yearly price")
	}

	plan := model.Plan{
		Name:         validation.SanitizeString(req.Name),
		Description:  req.Description,
		MonthlyPrice: req.MonthlyPrice,
		YearlyPrice:  req.YearlyPrice,
		Active:       true,
	}

	err := services.WithUniqueRetry(func(attempt int) error {
		return h.db.Transaction(func(tx *gorm.DB) error {
			code, err := h.references.NextBusinessCode(tx, "SRV")
			if err != nil {
				return err
			}
			plan.Code = code
			plan.ID = 0
			return tx.Create(&plan).Error
		})
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create plan")
	}

	return response.Created(c, plan)
}

// SubscribeRequest is the checkout form for a new or renewed subscription
type SubscribeRequest struct {
	PlanID  uint   `json:"plan_id" validate:"required"`
	Period  string `json:"period" validate:"required,oneof=monthly yearly"`
	Channel string `json:"channel" validate:"omitempty,oneof=card mobile_money bank_transfer"`
	Phone   string `json:"phone"`
}

// Subscribe finds or creates the user's subscription to a plan and opens a
// payment session for the selected period. Renewal reuses the existing row,
// so replaying the endpoint never creates duplicate subscriptions.
func (h *SubscriptionHandler) Subscribe(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var plan model.Plan
	if err := h.db.First(&plan, req.PlanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Plan not found")
		}
		return response.InternalServerError(c, "Failed to load plan")
	}
	if !plan.Active {
		return response.UnprocessableEntity(c, "This plan is no longer available")
	}
	if req.Period == model.PeriodMonthly && plan.MonthlyPrice == 0 {
		return response.UnprocessableEntity(c, "This plan has no monthly pricing")
	}
	if req.Period == model.PeriodYearly && plan.YearlyPrice == 0 {
		return response.UnprocessableEntity(c, "This plan has no yearly pricing")
	}

	var sub model.Subscription
	err := h.db.Where("user_id = ? AND plan_id = ?", user.ID, plan.ID).First(&sub).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return response.InternalServerError(c, "Failed to load subscription")
		}
		sub = model.Subscription{
			UserID: user.ID,
			PlanID: plan.ID,
			Status: model.SubscriptionStatusPending,
		}
	}
	sub.Period = req.Period
	if err := h.db.Save(&sub).Error; err != nil {
		return response.InternalServerError(c, "Failed to save subscription")
	}

	userID := user.ID
	result, err := h.payments.Initiate(c.Context(), services.PayableTypeSubscription, sub.ID, services.InitiateInput{
		Channel:           req.Channel,
		CustomerEmail:     user.Email,
		CustomerFirstName: user.FirstName,
		CustomerLastName:  user.LastName,
		CustomerPhone:     req.Phone,
		Repay:             true, // renewals re-pay the same subscription row
		UserID:            &userID,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to initiate payment")
	}

	return response.Success(c, result)
}

// MySubscriptions lists the authenticated user's subscriptions
func (h *SubscriptionHandler) MySubscriptions(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var subs []model.Subscription
	err := h.db.
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list subscriptions")
	}

	return response.Success(c, subs)
}

// ExpireLapsed is the admin sweep that marks active subscriptions past their
// cycle end as expired.
func (h *SubscriptionHandler) ExpireLapsed(c *fiber.Ctx) error {
	result := h.db.Model(&model.Subscription{}).
		Where("status = ? AND current_cycle_end IS NOT NULL AND current_cycle_end < ?",
			model.SubscriptionStatusActive, time.Now()).
		Update("status", model.SubscriptionStatusExpired)
	if result.Error != nil {
		return response.InternalServerError(c, "Failed to expire subscriptions")
	}

	return response.Success(c, fiber.Map{"expired": result.RowsAffected})
}

// Plan by id for detail pages
func (h *SubscriptionHandler) GetPlan(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid plan id")
	}

	var plan model.Plan
	if err := h.db.First(&plan, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Plan not found")
		}
		return response.InternalServerError(c, "Failed to load plan")
	}
	return response.Success(c, plan)
}
