package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/afrilegal/juris-api/model"
)

// ExpireStalePayments transitions payments past their expiry window to the
// expired status through the regular state machine.
func (m *CronManager) ExpireStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	expired, err := m.payments.ExpireStale(ctx)
	if err != nil {
		m.logJobError("expire_stale_payments", err)
		return
	}

	m.logJobComplete("expire_stale_payments", fmt.Sprintf("expired %d payments", expired))
}

// ReportUnfulfilledPayments counts succeeded payments flagged with a
// fulfillment warning so operators notice records needing manual review.
func (m *CronManager) ReportUnfulfilledPayments() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	payments, err := m.payments.UnfulfilledPayments(ctx)
	if err != nil {
		m.logJobError("report_unfulfilled_payments", err)
		return
	}

	m.logJobComplete("report_unfulfilled_payments",
		fmt.Sprintf("%d succeeded payments awaiting manual fulfillment review", len(payments)))
}

// CleanupOldCronLogs deletes cron logs older than 30 days
func (m *CronManager) CleanupOldCronLogs() {
	cutoff := time.Now().AddDate(0, 0, -30)

	result := m.db.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.logJobError("cleanup_old_cron_logs", result.Error)
		return
	}

	m.logJobComplete("cleanup_old_cron_logs",
		fmt.Sprintf("deleted %d old cron logs", result.RowsAffected))
}
