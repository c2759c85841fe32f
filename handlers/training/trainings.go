package training

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

// TrainingHandler handles training sessions and enrollment
type TrainingHandler struct {
	db         *gorm.DB
	references *services.ReferenceService
	payments   *services.PaymentService
	validator  *validation.Validator
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(db *gorm.DB, references *services.ReferenceService, payments *services.PaymentService) *TrainingHandler {
	return &TrainingHandler{
		db:         db,
		references: references,
		payments:   payments,
		validator:  validation.NewValidator(),
	}
}

// List returns the active training sessions
func (h *TrainingHandler) List(c *fiber.Ctx) error {
	var trainings []model.Training
	if err := h.db.Where("active = ?", true).Order("starts_at").Find(&trainings).Error; err != nil {
		return response.InternalServerError(c, "Failed to list trainings")
	}
	return response.Success(c, trainings)
}

// Get returns one training session
func (h *TrainingHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid training id")
	}

	var training model.Training
	if err := h.db.First(&training, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Training not found")
		}
		return response.InternalServerError(c, "Failed to load training")
	}
	return response.Success(c, training)
}

// CreateTrainingRequest is the admin form for a new session
type CreateTrainingRequest struct {
	Title       string     `json:"title" validate:"required,min=3"`
	Description string     `json:"description"`
	Price       int64      `json:"price" validate:"required,gte=1"`
	StartsAt    *time.Time `json:"starts_at"`
	Capacity    int        `json:"capacity" validate:"gte=0"`
}

// Create registers a new training session with a generated FORM code
func (h *TrainingHandler) Create(c *fiber.Ctx) error {
	var req CreateTrainingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	training := model.Training{
		Title:       validation.SanitizeString(req.Title),
		Description: req.Description,
		Price:       req.Price,
		StartsAt:    req.StartsAt,
		Capacity:    req.Capacity,
		Active:      true,
	}

	err := services.WithUniqueRetry(func(attempt int) error {
		return h.db.Transaction(func(tx *gorm.DB) error {
			code, err := h.references.NextBusinessCode(tx, "FORM")
			if err != nil {
				return err
			}
			training.Code = code
			training.ID = 0
			return tx.Create(&training).Error
		})
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create training")
	}

	return response.Created(c, training)
}

// EnrollRequest is the checkout form for a training enrollment
type EnrollRequest struct {
	Channel string `json:"channel" validate:"omitempty,oneof=card mobile_money bank_transfer"`
	Phone   string `json:"phone"`
	Repay   bool   `json:"repay"`
}

// Enroll opens a payment session for the authenticated user against a
// training. The registration line is created by fulfillment once the payment
// is confirmed; nothing is written to the roster here.
func (h *TrainingHandler) Enroll(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid training id")
	}

	var req EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var training model.Training
	if err := h.db.First(&training, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Training not found")
		}
		return response.InternalServerError(c, "Failed to load training")
	}
	if !training.Active {
		return response.UnprocessableEntity(c, "This training is no longer open for enrollment")
	}

	if training.Capacity > 0 {
		var enrolled int64
		err := h.db.Model(&model.TrainingRegistration{}).
			Where("training_id = ? AND status = ?", training.ID, model.RegistrationStatusPaid).
			Count(&enrolled).Error
		if err != nil {
			return response.InternalServerError(c, "Failed to check capacity")
		}
		if enrolled >= int64(training.Capacity) {
			return response.Conflict(c, "This training is full")
		}
	}

	// Enrollment is per user, not per training: a session with one paid
	// registration must stay payable for everyone else. The shared
	// already-paid guard is bypassed and the user's own line checked instead.
	if !req.Repay {
		var existing int64
		err := h.db.Model(&model.TrainingRegistration{}).
			Where("training_id = ? AND user_id = ? AND status = ?",
				training.ID, user.ID, model.RegistrationStatusPaid).
			Count(&existing).Error
		if err != nil {
			return response.InternalServerError(c, "Failed to check enrollment")
		}
		if existing > 0 {
			return response.Conflict(c, "You are already enrolled in this training")
		}
	}

	userID := user.ID
	result, err := h.payments.Initiate(c.Context(), services.PayableTypeTraining, training.ID, services.InitiateInput{
		Channel:           req.Channel,
		CustomerEmail:     user.Email,
		CustomerFirstName: user.FirstName,
		CustomerLastName:  user.LastName,
		CustomerPhone:     req.Phone,
		Repay:             true,
		UserID:            &userID,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to initiate payment")
	}

	return response.Success(c, result)
}

// MyRegistrations lists the authenticated user's training registrations
func (h *TrainingHandler) MyRegistrations(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var registrations []model.TrainingRegistration
	err := h.db.
		Preload("Training").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&registrations).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list registrations")
	}

	return response.Success(c, registrations)
}
