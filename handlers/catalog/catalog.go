package catalog

import (
	"errors"
	"strconv"
	"time"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/services/storage"
	"github.com/afrilegal/juris-api/utils/middleware"
	"github.com/afrilegal/juris-api/utils/response"
	"github.com/afrilegal/juris-api/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CatalogHandler handles the boutique: items, checkout and delivery
type CatalogHandler struct {
	db         *gorm.DB
	references *services.ReferenceService
	payments   *services.PaymentService
	storage    *storage.SpacesClient // optional; downloads 404 when nil
	validator  *validation.Validator
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(db *gorm.DB, references *services.ReferenceService, payments *services.PaymentService, storageClient *storage.SpacesClient) *CatalogHandler {
	return &CatalogHandler{
		db:         db,
		references: references,
		payments:   payments,
		storage:    storageClient,
		validator:  validation.NewValidator(),
	}
}

// ListItems returns the active boutique items
func (h *CatalogHandler) ListItems(c *fiber.Ctx) error {
	var items []model.CatalogItem
	if err := h.db.Where("active = ?", true).Order("code").Find(&items).Error; err != nil {
		return response.InternalServerError(c, "Failed to list catalog items")
	}
	return response.Success(c, items)
}

// GetItem returns one boutique item
func (h *CatalogHandler) GetItem(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid item id")
	}

	var item model.CatalogItem
	if err := h.db.First(&item, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Catalog item not found")
		}
		return response.InternalServerError(c, "Failed to load catalog item")
	}
	return response.Success(c, item)
}

// CreateItemRequest is the admin form for a new boutique item
type CreateItemRequest struct {
	Name        string `json:"name" validate:"required,min=3"`
	Description string `json:"description"`
	Price       int64  `json:"price" validate:"required,gte=1"`
	PayloadKey  string `json:"payload_key"`
}

// CreateItem registers a new boutique item with a generated PROD code
func (h *CatalogHandler) CreateItem(c *fiber.Ctx) error {
	var req CreateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	item := model.CatalogItem{
		Name:        validation.SanitizeString(req.Name),
		Description: req.Description,
		Price:       req.Price,
		PayloadKey:  req.PayloadKey,
		Active:      true,
	}

	err := services.WithUniqueRetry(func(attempt int) error {
		return h.db.Transaction(func(tx *gorm.DB) error {
			code, err := h.references.NextBusinessCode(tx, "PROD")
			if err != nil {
				return err
			}
			item.Code = code
			item.ID = 0
			return tx.Create(&item).Error
		})
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create catalog item")
	}

	return response.Created(c, item)
}

// CheckoutRequest is the purchase form for a boutique item
type CheckoutRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Channel string `json:"channel" validate:"omitempty,oneof=card mobile_money bank_transfer"`
	Phone   string `json:"phone"`
	Name    string `json:"name"`
}

// Checkout creates a purchase line for an item and opens its payment session.
// The purchase captures the unit price at checkout time, so a later price
// change cannot alter what an in-flight buyer owes.
func (h *CatalogHandler) Checkout(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return response.BadRequest(c, "Invalid item id")
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var item model.CatalogItem
	if err := h.db.First(&item, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Catalog item not found")
		}
		return response.InternalServerError(c, "Failed to load catalog item")
	}
	if !item.Active {
		return response.UnprocessableEntity(c, "This item is no longer for sale")
	}

	purchase := model.Purchase{
		CatalogItemID: item.ID,
		CustomerEmail: validation.SanitizeString(req.Email),
		UnitPrice:     item.Price,
		Currency:      "XOF",
		Status:        model.PurchaseStatusPending,
	}
	if userID, ok := middleware.GetUserID(c); ok {
		purchase.UserID = &userID
	}

	err = services.WithUniqueRetry(func(attempt int) error {
		return h.db.Transaction(func(tx *gorm.DB) error {
			ref, err := h.references.NextPurchaseRef(tx)
			if err != nil {
				return err
			}
			purchase.Ref = ref
			purchase.ID = 0
			return tx.Create(&purchase).Error
		})
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create purchase")
	}

	input := services.InitiateInput{
		Channel:           req.Channel,
		CustomerEmail:     purchase.CustomerEmail,
		CustomerFirstName: validation.SanitizeString(req.Name),
		CustomerPhone:     validation.SanitizeString(req.Phone),
	}
	input.UserID = purchase.UserID

	result, err := h.payments.Initiate(c.Context(), services.PayableTypePurchase, purchase.ID, input)
	if err != nil {
		return response.InternalServerError(c, "Failed to initiate payment")
	}

	return response.Success(c, fiber.Map{
		"purchase": purchase,
		"payment":  result,
	})
}

// MyPurchases lists the authenticated user's purchases
func (h *CatalogHandler) MyPurchases(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	email, _ := middleware.GetUserEmail(c)

	var purchases []model.Purchase
	err := h.db.
		Preload("CatalogItem").
		Where("user_id = ? OR (user_id IS NULL AND customer_email = ?)", userID, email).
		Order("created_at DESC").
		Find(&purchases).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list purchases")
	}

	return response.Success(c, purchases)
}

// Download hands out a short-lived link to a delivered purchase's payload.
// Only a paid, delivered purchase is downloadable, and only by its owner.
func (h *CatalogHandler) Download(c *fiber.Ctx) error {
	ref := c.Params("ref")

	var purchase model.Purchase
	err := h.db.Preload("CatalogItem").Where("ref = ?", ref).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Purchase not found")
		}
		return response.InternalServerError(c, "Failed to load purchase")
	}

	email, _ := middleware.GetUserEmail(c)
	userID, _ := middleware.GetUserID(c)
	role, _ := c.Locals("user_role").(string)
	owned := (purchase.UserID != nil && *purchase.UserID == userID) ||
		(purchase.CustomerEmail != "" && purchase.CustomerEmail == email)
	if role != "admin" && !owned {
		return response.Forbidden(c, "You do not have access to this purchase")
	}

	if purchase.Status != model.PurchaseStatusPaid || purchase.DeliveredAt == nil {
		return response.NotFound(c, "This purchase has not been delivered")
	}

	if h.storage == nil || purchase.CatalogItem.PayloadKey == "" {
		return response.NotFound(c, "No downloadable payload for this purchase")
	}

	url, err := h.storage.PresignGet(purchase.CatalogItem.PayloadKey, 15*time.Minute)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate download link")
	}

	return response.Success(c, fiber.Map{
		"ref":        purchase.Ref,
		"url":        url,
		"expires_in": int((15 * time.Minute).Seconds()),
	})
}
