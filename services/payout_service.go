package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"affiliate-payout-system/models"
	"affiliate-payout-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutService owns the two ledger-mutating batch operations plus the
// operator query surface. Batch creation and mark-paid are all-or-nothing:
// any failure mid-operation rolls the whole transaction back, so no batch is
// ever left with mismatched claims.
type PayoutService struct {
	DB *gorm.DB
}

func NewPayoutService(db *gorm.DB) *PayoutService {
	return &PayoutService{DB: db}
}

// AffiliatePayoutGroup is one affiliate's slice of a batch or candidate set
type AffiliatePayoutGroup struct {
	AffiliateID string              `json:"affiliate_id"`
	Code        string              `json:"code"`
	Name        string              `json:"name"`
	Destination string              `json:"payout_destination"` // "not_set" needs operator follow-up
	EntryCount  int                 `json:"entry_count"`
	Subtotal    float64             `json:"subtotal"`
	Commissions []models.Commission `json:"commissions,omitempty"`
}

// CreateBatch claims every currently payable, unbatched commission into a new
// immutable batch. The claim is an optimistic compare-and-swap: the
// conditional update must affect exactly the selected rows, otherwise a
// concurrent batch got there first and the whole transaction rolls back with
// ErrBatchConflict. Never creates an empty batch.
func (s *PayoutService) CreateBatch(now time.Time) (*models.PayoutBatch, error) {
	if err := RefreshOpenCommissions(s.DB, now); err != nil {
		return nil, err
	}

	var batch models.PayoutBatch
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var payable []models.Commission
		if err := tx.Where("status = ? AND payout_batch_id IS NULL", models.CommissionPayable).
			Find(&payable).Error; err != nil {
			return err
		}
		if len(payable) == 0 {
			return ErrNoPayableCommissions
		}

		ids := make([]string, 0, len(payable))
		affiliates := map[string]struct{}{}
		total := 0.0
		periodStart, periodEnd := now, now
		first := true
		for _, com := range payable {
			ids = append(ids, com.ID)
			affiliates[com.AffiliateID] = struct{}{}
			total += com.CommissionAmount
			if com.PayableAt != nil {
				if first || com.PayableAt.Before(periodStart) {
					periodStart = *com.PayableAt
				}
				if first || com.PayableAt.After(periodEnd) {
					periodEnd = *com.PayableAt
				}
				first = false
			}
		}

		batch = models.PayoutBatch{
			ID:               uuid.NewString(),
			BatchDate:        now,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			TotalCommissions: roundMoney(total),
			TotalAffiliates:  len(affiliates),
			TotalEntries:     len(ids),
			Status:           models.PayoutBatchPending,
		}
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}

		return claimBatchEntries(tx, batch.ID, ids)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[PAYOUT] created batch %s: %d entries, %d affiliates, total %.2f",
		batch.ID, batch.TotalEntries, batch.TotalAffiliates, batch.TotalCommissions)
	return &batch, nil
}

// claimBatchEntries stamps ids with the batch. The update re-checks the
// selection predicate, so rows another batch claimed (or that turned void)
// since selection are not taken; a row-count mismatch means exactly that
// happened, and the returned ErrBatchConflict aborts the caller's
// transaction.
func claimBatchEntries(tx *gorm.DB, batchID string, ids []string) error {
	res := tx.Model(&models.Commission{}).
		Where("status = ? AND payout_batch_id IS NULL AND id IN ?", models.CommissionPayable, ids).
		Update("payout_batch_id", batchID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != int64(len(ids)) {
		log.Printf("[PAYOUT] batch claim conflict: wanted %d rows, claimed %d — rolling back", len(ids), res.RowsAffected)
		return ErrBatchConflict
	}
	return nil
}

// MarkPaid finalizes a batch exactly once: every claimed commission is
// stamped paid with a shared paid_at and the batch completes. A second call
// is rejected by the status pre-check and changes nothing.
func (s *PayoutService) MarkPaid(batchID string, now time.Time) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	if err := s.DB.Where("id = ?", batchID).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	if batch.Status == models.PayoutBatchCompleted {
		return nil, ErrBatchAlreadyPaid
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Commission{}).
			Where("payout_batch_id = ?", batch.ID).
			Updates(map[string]interface{}{
				"status":  models.CommissionPaid,
				"paid_at": now,
			}).Error; err != nil {
			return err
		}
		batch.Status = models.PayoutBatchCompleted
		batch.ProcessedAt = &now
		return tx.Save(&batch).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[PAYOUT] batch %s marked paid (%d entries, total %.2f)", batch.ID, batch.TotalEntries, batch.TotalCommissions)

	// Settlement report is best-effort; a failed upload never unwinds the payout
	s.uploadSettlementReport(&batch, now)

	return &batch, nil
}

func (s *PayoutService) uploadSettlementReport(batch *models.PayoutBatch, now time.Time) {
	if !utils.R2Enabled() {
		return
	}
	groups, err := s.groupCommissions(s.DB.Where("payout_batch_id = ?", batch.ID), false)
	if err != nil {
		log.Printf("[PAYOUT] settlement report skipped for batch %s: %v", batch.ID, err)
		return
	}

	body := "affiliate_code,affiliate_name,payout_destination,entries,subtotal\n"
	for _, g := range groups {
		body += fmt.Sprintf("%s,%q,%q,%d,%.2f\n", g.Code, g.Name, g.Destination, g.EntryCount, g.Subtotal)
	}
	key := fmt.Sprintf("settlements/%s/%s.csv", now.Format("2006-01"), batch.ID)
	url, err := utils.UploadReport(key, []byte(body), "text/csv")
	if err != nil {
		log.Printf("[PAYOUT] settlement report upload failed for batch %s: %v", batch.ID, err)
		return
	}
	if err := s.DB.Model(&models.PayoutBatch{}).Where("id = ?", batch.ID).Update("report_url", url).Error; err != nil {
		log.Printf("[PAYOUT] failed to store report URL for batch %s: %v", batch.ID, err)
	}
}

func (s *PayoutService) groupCommissions(q *gorm.DB, includeEntries bool) ([]AffiliatePayoutGroup, error) {
	var coms []models.Commission
	if err := q.Preload("Affiliate").Order("created_at asc").Find(&coms).Error; err != nil {
		return nil, err
	}

	byAffiliate := map[string]*AffiliatePayoutGroup{}
	order := []string{}
	for _, com := range coms {
		g, ok := byAffiliate[com.AffiliateID]
		if !ok {
			g = &AffiliatePayoutGroup{AffiliateID: com.AffiliateID, Destination: "not_set"}
			if com.Affiliate != nil {
				g.Code = com.Affiliate.Code
				g.Name = com.Affiliate.Name
				g.Destination = com.Affiliate.PayoutDestination()
			}
			byAffiliate[com.AffiliateID] = g
			order = append(order, com.AffiliateID)
		}
		g.EntryCount++
		g.Subtotal = roundMoney(g.Subtotal + com.CommissionAmount)
		if includeEntries {
			com.Affiliate = nil
			g.Commissions = append(g.Commissions, com)
		}
	}

	out := make([]AffiliatePayoutGroup, 0, len(order))
	for _, id := range order {
		out = append(out, *byAffiliate[id])
	}
	return out, nil
}

// PayableCandidates previews what the next batch would claim, grouped per
// affiliate with payout destinations resolved for operator follow-up.
func (s *PayoutService) PayableCandidates(now time.Time) ([]AffiliatePayoutGroup, float64, error) {
	if err := RefreshOpenCommissions(s.DB, now); err != nil {
		return nil, 0, err
	}
	groups, err := s.groupCommissions(
		s.DB.Where("status = ? AND payout_batch_id IS NULL", models.CommissionPayable), true)
	if err != nil {
		return nil, 0, err
	}
	total := 0.0
	for _, g := range groups {
		total += g.Subtotal
	}
	return groups, roundMoney(total), nil
}

func (s *PayoutService) ListBatches() ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	if err := s.DB.Order("batch_date desc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// BatchDetail regroups a batch's commissions per affiliate with subtotals
func (s *PayoutService) BatchDetail(batchID string) (*models.PayoutBatch, []AffiliatePayoutGroup, error) {
	var batch models.PayoutBatch
	if err := s.DB.Where("id = ?", batchID).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrBatchNotFound
		}
		return nil, nil, err
	}
	groups, err := s.groupCommissions(s.DB.Where("payout_batch_id = ?", batch.ID), true)
	if err != nil {
		return nil, nil, err
	}
	return &batch, groups, nil
}

// PayoutSummary is the operator dashboard headline
type PayoutSummary struct {
	TotalPayable      float64   `json:"total_payable"`
	PayableEntries    int64     `json:"payable_entries"`
	PayableAffiliates int64     `json:"payable_affiliates"`
	NextPayoutDate    time.Time `json:"next_payout_date"`
}

// Summary computes total payable right now and the next scheduled payout
// date — the 10th of the current month, or next month's once the 10th passed.
func (s *PayoutService) Summary(now time.Time) (*PayoutSummary, error) {
	if err := RefreshOpenCommissions(s.DB, now); err != nil {
		return nil, err
	}

	base := s.DB.Model(&models.Commission{}).
		Where("status = ? AND payout_batch_id IS NULL", models.CommissionPayable)

	var total float64
	if err := base.Session(&gorm.Session{}).Select("COALESCE(SUM(commission_amount),0)").Scan(&total).Error; err != nil {
		return nil, err
	}
	var entries int64
	if err := base.Session(&gorm.Session{}).Count(&entries).Error; err != nil {
		return nil, err
	}
	var affiliates int64
	if err := base.Session(&gorm.Session{}).Distinct("affiliate_id").Count(&affiliates).Error; err != nil {
		return nil, err
	}

	return &PayoutSummary{
		TotalPayable:      roundMoney(total),
		PayableEntries:    entries,
		PayableAffiliates: affiliates,
		NextPayoutDate:    NextPayoutDate(now),
	}, nil
}

// NextPayoutDate is the 10th of the current month while we have not passed
// it, otherwise the 10th of the next month.
func NextPayoutDate(now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), 10, 0, 0, 0, 0, now.Location())
	if now.Day() <= 10 {
		return candidate
	}
	return candidate.AddDate(0, 1, 0)
}
