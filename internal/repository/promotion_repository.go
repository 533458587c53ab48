package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// PromotionRepo reads promotion codes. Usage counters are only written
// by ReservationRepo.Create inside the booking transaction.
type PromotionRepo struct {
	db *sql.DB
}

// NewPromotionRepo returns a new PromotionRepo bound to the given database.
func NewPromotionRepo(db *sql.DB) *PromotionRepo { return &PromotionRepo{db: db} }

// GetPromotion returns a promotion by ID or ErrNotFound.
func (r *PromotionRepo) GetPromotion(ctx context.Context, id uint64) (*model.Promotion, error) {
	const q = `SELECT id, code, discount_type, percent_off, amount_off_cents, start_date, end_date,
                      max_uses, current_uses, min_booking_cents, is_active
               FROM promotions WHERE id = ?`
	var p model.Promotion
	var dtype string
	var pct sql.NullFloat64
	var amount, maxUses sql.NullInt64
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Code, &dtype, &pct, &amount, &p.StartDate, &p.EndDate,
		&maxUses, &p.CurrentUses, &p.MinBookingCents, &p.IsActive,
	)
	if err != nil {
		return nil, classify("find promotion", err)
	}
	p.DiscountType = model.DiscountType(dtype)
	p.PercentOff = pct.Float64
	p.AmountOffCents = amount.Int64
	if maxUses.Valid {
		v := int(maxUses.Int64)
		p.MaxUses = &v
	}
	p.StartDate = utils.Day(p.StartDate)
	p.EndDate = utils.Day(p.EndDate)
	return &p, nil
}
