package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/afrilegal/juris-api/model"
	"github.com/afrilegal/juris-api/utils/cache"
	"gorm.io/gorm"
)

// RevenueService builds read-only reporting from the payment ledger and the
// payable tables.
type RevenueService struct {
	db    *gorm.DB
	cache *cache.RedisCache // optional
}

// NewRevenueService creates a new revenue service
func NewRevenueService(db *gorm.DB, redisCache *cache.RedisCache) *RevenueService {
	return &RevenueService{db: db, cache: redisCache}
}

// CatalogItemStats summarizes purchases of one catalog item
type CatalogItemStats struct {
	CatalogItemID uint   `json:"catalog_item_id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	PurchaseCount int64  `json:"purchase_count"`
	PaidPurchases int64  `json:"paid_purchases"`
	Revenue       int64  `json:"revenue"`
}

// GetCatalogItemStats computes purchase counts and revenue for one item.
// Revenue is the sum of paid purchases' unit prices.
func (s *RevenueService) GetCatalogItemStats(ctx context.Context, itemID uint) (*CatalogItemStats, error) {
	var item model.CatalogItem
	if err := s.db.First(&item, itemID).Error; err != nil {
		return nil, fmt.Errorf("failed to load catalog item: %w", err)
	}

	stats := &CatalogItemStats{
		CatalogItemID: item.ID,
		Code:          item.Code,
		Name:          item.Name,
	}

	if err := s.db.Model(&model.Purchase{}).
		Where("catalog_item_id = ?", itemID).
		Count(&stats.PurchaseCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count purchases: %w", err)
	}

	if err := s.db.Model(&model.Purchase{}).
		Where("catalog_item_id = ? AND status = ?", itemID, model.PurchaseStatusPaid).
		Count(&stats.PaidPurchases).Error; err != nil {
		return nil, fmt.Errorf("failed to count paid purchases: %w", err)
	}

	var revenue struct {
		Total int64
	}
	if err := s.db.Model(&model.Purchase{}).
		Select("COALESCE(SUM(unit_price), 0) as total").
		Where("catalog_item_id = ? AND status = ?", itemID, model.PurchaseStatusPaid).
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	stats.Revenue = revenue.Total

	return stats, nil
}

// DashboardStats represents the global back-office dashboard
type DashboardStats struct {
	TotalCatalogItems  int64 `json:"total_catalog_items"`
	ActiveCatalogItems int64 `json:"active_catalog_items"`
	PaidPurchases      int64 `json:"paid_purchases"`
	TotalRevenue       int64 `json:"total_revenue"`
	SucceededPayments  int64 `json:"succeeded_payments"`
	PendingPayments    int64 `json:"pending_payments"`
}

const dashboardCacheKey = "stats:dashboard"

// GetDashboardStats retrieves the global dashboard, cached for a minute when
// Redis is available.
func (s *RevenueService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	if s.cache != nil {
		var cached DashboardStats
		if err := s.cache.GetJSON(ctx, dashboardCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	stats := &DashboardStats{}

	if err := s.db.Model(&model.CatalogItem{}).Count(&stats.TotalCatalogItems).Error; err != nil {
		return nil, fmt.Errorf("failed to count catalog items: %w", err)
	}

	if err := s.db.Model(&model.CatalogItem{}).
		Where("active = ?", true).
		Count(&stats.ActiveCatalogItems).Error; err != nil {
		return nil, fmt.Errorf("failed to count active catalog items: %w", err)
	}

	if err := s.db.Model(&model.Purchase{}).
		Where("status = ?", model.PurchaseStatusPaid).
		Count(&stats.PaidPurchases).Error; err != nil {
		return nil, fmt.Errorf("failed to count paid purchases: %w", err)
	}

	var revenue struct {
		Total int64
	}
	if err := s.db.Model(&model.Purchase{}).
		Select("COALESCE(SUM(unit_price), 0) as total").
		Where("status = ?", model.PurchaseStatusPaid).
		Scan(&revenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}
	stats.TotalRevenue = revenue.Total

	if err := s.db.Model(&model.Payment{}).
		Where("status = ?", model.PaymentStatusSucceeded).
		Count(&stats.SucceededPayments).Error; err != nil {
		return nil, fmt.Errorf("failed to count succeeded payments: %w", err)
	}

	if err := s.db.Model(&model.Payment{}).
		Where("status IN ?", []model.PaymentStatus{
			model.PaymentStatusPending,
			model.PaymentStatusInitiated,
			model.PaymentStatusProcessing,
		}).
		Count(&stats.PendingPayments).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending payments: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, dashboardCacheKey, stats, time.Minute); err != nil {
			log.Println("Warning: failed to cache dashboard stats:", err)
		}
	}

	return stats, nil
}

// PlanStats summarizes subscribers of one plan. Inactive is derived as
// total - active - pending, not independently stored.
type PlanStats struct {
	PlanID   uint   `json:"plan_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Total    int64  `json:"total"`
	Active   int64  `json:"active"`
	Pending  int64  `json:"pending"`
	Inactive int64  `json:"inactive"`
}

// GetPlanStats computes subscriber counts per plan
func (s *RevenueService) GetPlanStats(ctx context.Context) ([]PlanStats, error) {
	var plans []model.Plan
	if err := s.db.Order("code").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	stats := make([]PlanStats, 0, len(plans))
	for _, plan := range plans {
		ps := PlanStats{PlanID: plan.ID, Code: plan.Code, Name: plan.Name}

		if err := s.db.Model(&model.Subscription{}).
			Where("plan_id = ?", plan.ID).
			Count(&ps.Total).Error; err != nil {
			return nil, fmt.Errorf("failed to count subscribers: %w", err)
		}

		if err := s.db.Model(&model.Subscription{}).
			Where("plan_id = ? AND status = ?", plan.ID, model.SubscriptionStatusActive).
			Count(&ps.Active).Error; err != nil {
			return nil, fmt.Errorf("failed to count active subscribers: %w", err)
		}

		if err := s.db.Model(&model.Subscription{}).
			Where("plan_id = ? AND status = ?", plan.ID, model.SubscriptionStatusPending).
			Count(&ps.Pending).Error; err != nil {
			return nil, fmt.Errorf("failed to count pending subscribers: %w", err)
		}

		ps.Inactive = ps.Total - ps.Active - ps.Pending
		stats = append(stats, ps)
	}

	return stats, nil
}

// UserEngagement classifies one user's rows across the payable tables
type UserEngagement struct {
	UserID        uint             `json:"user_id"`
	Subscriptions map[string]int64 `json:"subscriptions"`
	Registrations map[string]int64 `json:"registrations"`
	Requests      map[string]int64 `json:"requests"`
}

// GetUserEngagement scans the subscription, registration and request tables
// for one user and buckets each row's free-form status string.
func (s *RevenueService) GetUserEngagement(ctx context.Context, userID uint) (*UserEngagement, error) {
	engagement := &UserEngagement{
		UserID:        userID,
		Subscriptions: newStatusBuckets(),
		Registrations: newStatusBuckets(),
		Requests:      newStatusBuckets(),
	}

	var subs []model.Subscription
	if err := s.db.Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	for _, sub := range subs {
		engagement.Subscriptions[ClassifyStatus(sub.Status)]++
	}

	var regs []model.TrainingRegistration
	if err := s.db.Where("user_id = ?", userID).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	for _, reg := range regs {
		engagement.Registrations[ClassifyStatus(reg.Status)]++
	}

	// Requests are filtered by the user relation when set, by the customer
	// email otherwise: historical rows predate the user_id column.
	var user model.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	var reqs []model.Request
	if err := s.db.
		Where("user_id = ? OR (user_id IS NULL AND customer_email = ?)", userID, user.Email).
		Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	for _, req := range reqs {
		engagement.Requests[ClassifyStatus(req.PaymentStatus)]++
	}

	return engagement, nil
}

func newStatusBuckets() map[string]int64 {
	return map[string]int64{
		"active":   0,
		"pending":  0,
		"expired":  0,
		"inactive": 0,
	}
}

// statusKeywords buckets free-form status strings, handling the French and
// English synonyms that accumulated across the tables.
var statusKeywords = map[string]string{
	"actif":               "active",
	"active":              "active",
	"paid":                "active",
	"payé":                "active",
	"confirmé":            "active",
	"paiement confirmé":   "active",
	"en_attente":          "pending",
	"en attente":          "pending",
	"pending":             "pending",
	"paiement en attente": "pending",
	"expiré":              "expired",
	"expired":             "expired",
}

// ClassifyStatus maps a free-form status string to one of
// active/pending/expired/inactive.
func ClassifyStatus(status string) string {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if bucket, ok := statusKeywords[normalized]; ok {
		return bucket
	}
	return "inactive"
}
