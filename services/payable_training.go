package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/afrilegal/juris-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrainingPayable adapts a training session to the Payable capability.
// Fulfillment creates or updates a registration line keyed by
// (training, user); the natural key is what makes duplicate success
// deliveries idempotent.
type TrainingPayable struct {
	Training *model.Training
}

// AmountXOF returns the session's fixed price
func (p *TrainingPayable) AmountXOF() (int64, error) {
	if p.Training.Price <= 0 {
		return 0, fmt.Errorf("%w: training %s has no price", ErrAmountUnresolved, p.Training.Code)
	}
	return p.Training.Price, nil
}

// Label returns the receipt description for the session
func (p *TrainingPayable) Label() string {
	return fmt.Sprintf("Formation: %s (%s)", p.Training.Title, p.Training.Code)
}

// OnPaymentPending has nothing to record on the session itself
func (p *TrainingPayable) OnPaymentPending(tx *gorm.DB, payment *model.Payment) error {
	return nil
}

// OnPaymentSucceeded resolves the enrolling user and finds-or-creates the
// registration line. An unresolvable user is recorded as a warning on the
// payment meta and does not fail the transaction: money-received status is
// authoritative and independent of fulfillment completion.
func (p *TrainingPayable) OnPaymentSucceeded(tx *gorm.DB, payment *model.Payment) error {
	userID, err := p.resolveUser(tx, payment)
	if err != nil {
		payment.SetMeta("fulfillment_warning", fmt.Sprintf("training %s: %v", p.Training.Code, err))
		return tx.Model(payment).Update("meta", payment.Meta).Error
	}

	var line model.TrainingRegistration
	err = tx.Where("training_id = ? AND user_id = ?", p.Training.ID, userID).First(&line).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up registration: %w", err)
		}
		line = model.TrainingRegistration{
			TrainingID: p.Training.ID,
			UserID:     userID,
		}
	}

	line.Status = model.RegistrationStatusPaid
	if line.PaidAt == nil {
		now := time.Now()
		line.PaidAt = &now
	}
	line.Amount = payment.Amount
	line.Currency = payment.Currency
	paymentID := payment.ID
	line.PaymentID = &paymentID

	if line.Meta == nil {
		line.Meta = datatypes.JSONMap{}
	}
	line.Meta["payment_reference"] = payment.Reference
	line.Meta["channel"] = payment.Channel

	if err := tx.Save(&line).Error; err != nil {
		return fmt.Errorf("failed to save registration: %w", err)
	}

	payment.SetMeta("registration_id", line.ID)
	return tx.Model(payment).Update("meta", payment.Meta).Error
}

// OnPaymentFailed has nothing to undo: no registration line exists until a
// payment succeeds
func (p *TrainingPayable) OnPaymentFailed(tx *gorm.DB, payment *model.Payment) error {
	return nil
}

// resolveUser finds the enrolling user from the payment meta, falling back to
// a lookup by the payment's customer email.
func (p *TrainingPayable) resolveUser(tx *gorm.DB, payment *model.Payment) (uint, error) {
	if payment.Meta != nil {
		switch v := payment.Meta["user_id"].(type) {
		case float64:
			if v > 0 {
				return uint(v), nil
			}
		case int:
			if v > 0 {
				return uint(v), nil
			}
		case uint:
			if v > 0 {
				return v, nil
			}
		}
	}

	if payment.CustomerEmail != "" {
		var user model.User
		err := tx.Where("email = ?", payment.CustomerEmail).First(&user).Error
		if err == nil {
			return user.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("failed to look up user by email: %w", err)
		}
	}

	return 0, errors.New("no user resolved for enrollment")
}
