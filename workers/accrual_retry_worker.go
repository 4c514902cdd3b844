// workers/accrual_retry_worker.go
package workers

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"affiliate-payout-system/models"
	"affiliate-payout-system/services"
	"affiliate-payout-system/utils"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// AccrualRetryWorker replays journaled commission accruals that failed during
// order creation. Accrual is best-effort at checkout time; this worker is what
// makes "best-effort" eventually consistent.
type AccrualRetryWorker struct {
	DB          *gorm.DB
	Accrual     *services.AccrualService
	MaxAttempts int
	WebhookURL  string
}

func NewAccrualRetryWorker(db *gorm.DB, accrual *services.AccrualService, maxAttempts int, webhookURL string) *AccrualRetryWorker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &AccrualRetryWorker{DB: db, Accrual: accrual, MaxAttempts: maxAttempts, WebhookURL: webhookURL}
}

// Start schedules the retry sweep on the given interval
func (w *AccrualRetryWorker) Start(interval time.Duration) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			w.RunOnce(time.Now())
		}),
	)
	log.Printf("[RETRY] accrual retry worker scheduled every %s", interval)
}

// RunOnce sweeps all due retries. Exported so tests can drive it directly.
func (w *AccrualRetryWorker) RunOnce(now time.Time) {
	var due []models.AccrualRetry
	err := w.DB.Where("resolved = ? AND exhausted = ? AND next_run_at <= ?", false, false, now).
		Find(&due).Error
	if err != nil {
		log.Printf("[RETRY] failed to load due retries: %v", err)
		return
	}

	for _, retry := range due {
		if err := w.Accrual.Accrue(retry.OrderID, now); err != nil {
			retry.Attempts++
			retry.LastError = err.Error()
			if retry.Attempts >= w.MaxAttempts {
				retry.Exhausted = true
				log.Printf("[RETRY] accrual for order %s exhausted after %d attempts: %v", retry.OrderID, retry.Attempts, err)
				w.notifyOps(&retry)
			} else {
				retry.NextRunAt = now.Add(time.Duration(retry.Attempts) * 10 * time.Minute)
			}
			if serr := w.DB.Save(&retry).Error; serr != nil {
				log.Printf("[RETRY] failed to persist retry state for order %s: %v", retry.OrderID, serr)
			}
			continue
		}

		resolvedAt := now
		retry.Resolved = true
		retry.ResolvedAt = &resolvedAt
		if serr := w.DB.Save(&retry).Error; serr != nil {
			log.Printf("[RETRY] failed to mark retry resolved for order %s: %v", retry.OrderID, serr)
			continue
		}
		log.Printf("[RETRY] accrual replayed for order %s after %d failed attempts", retry.OrderID, retry.Attempts)
	}
}

// notifyOps posts an alert so a human can replay the accrual manually
func (w *AccrualRetryWorker) notifyOps(retry *models.AccrualRetry) {
	if w.WebhookURL == "" {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"event":      "accrual_retry_exhausted",
		"order_id":   retry.OrderID,
		"attempts":   retry.Attempts,
		"last_error": retry.LastError,
	})
	resp, err := utils.HTTPClient.Post(w.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("[RETRY] ops webhook failed for order %s: %v", retry.OrderID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		log.Printf("[RETRY] ops webhook returned %d for order %s", resp.StatusCode, retry.OrderID)
	}
}
