package services

import (
	"fmt"
	"time"

	"github.com/afrilegal/juris-api/model"
	"gorm.io/gorm"
)

// SubscriptionPayable adapts a subscription to the Payable capability.
// Renewal is idempotent per payment reference, and the new cycle extends from
// whichever is later: now or the current cycle end. A success replayed after
// a delay therefore cannot shorten the paid period.
type SubscriptionPayable struct {
	Subscription *model.Subscription
}

// AmountXOF picks the plan's monthly or yearly price by the subscription period
func (p *SubscriptionPayable) AmountXOF() (int64, error) {
	if p.Subscription.Plan == nil {
		return 0, fmt.Errorf("%w: subscription %d has no plan", ErrAmountUnresolved, p.Subscription.ID)
	}

	switch p.Subscription.Period {
	case model.PeriodMonthly:
		return p.Subscription.Plan.MonthlyPrice, nil
	case model.PeriodYearly:
		return p.Subscription.Plan.YearlyPrice, nil
	}
	return 0, fmt.Errorf("%w: subscription %d has period %q", ErrAmountUnresolved, p.Subscription.ID, p.Subscription.Period)
}

// Label returns the receipt description for the subscription
func (p *SubscriptionPayable) Label() string {
	if p.Subscription.Plan != nil {
		return fmt.Sprintf("Abonnement: %s (%s)", p.Subscription.Plan.Name, p.Subscription.Period)
	}
	return fmt.Sprintf("Abonnement #%d", p.Subscription.ID)
}

// OnPaymentPending keeps a never-activated subscription in the pending state
func (p *SubscriptionPayable) OnPaymentPending(tx *gorm.DB, payment *model.Payment) error {
	if p.Subscription.Status == model.SubscriptionStatusActive {
		return nil
	}
	p.Subscription.Status = model.SubscriptionStatusPending
	return tx.Save(p.Subscription).Error
}

// OnPaymentSucceeded activates the subscription and recomputes the billing
// cycle. A payment reference already applied is skipped.
func (p *SubscriptionPayable) OnPaymentSucceeded(tx *gorm.DB, payment *model.Payment) error {
	sub := p.Subscription

	if payment.Reference != "" && sub.LastPaymentRef == payment.Reference {
		return nil
	}

	start := time.Now()
	if sub.CurrentCycleEnd != nil && sub.CurrentCycleEnd.After(start) {
		start = *sub.CurrentCycleEnd
	}

	var end time.Time
	if sub.Period == model.PeriodYearly {
		end = start.AddDate(1, 0, 0)
	} else {
		end = start.AddDate(0, 1, 0)
	}

	sub.Status = model.SubscriptionStatusActive
	sub.CurrentCycleStart = &start
	sub.CurrentCycleEnd = &end
	sub.LastPaymentRef = payment.Reference

	return tx.Save(sub).Error
}

// OnPaymentFailed deactivates a subscription that never reached active
func (p *SubscriptionPayable) OnPaymentFailed(tx *gorm.DB, payment *model.Payment) error {
	if p.Subscription.Status != model.SubscriptionStatusPending {
		return nil
	}
	p.Subscription.Status = model.SubscriptionStatusInactive
	return tx.Save(p.Subscription).Error
}
