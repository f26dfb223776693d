package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	discountdomain "github.com/neuron-e/api-boukii-sub004/internal/discount/domain"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.BookingMetrics `optional:"true"`
	Repo    discountdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.BookingMetrics
	repo    discountdomain.Repository
}

func New(p Params) discountdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("discount.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

func (s *Service) ResolvePrice(ctx context.Context, bc discountdomain.BookingContext) (discountdomain.Resolution, error) {
	return s.resolve(ctx, s.db, bc, false)
}

func (s *Service) ResolveInTx(ctx context.Context, tx *gorm.DB, bc discountdomain.BookingContext) (discountdomain.Resolution, error) {
	return s.resolve(ctx, tx, bc, true)
}

// resolve applies at most one discount class: interval discounts first, then
// course discounts, then the submitted promo code.
func (s *Service) resolve(ctx context.Context, conn *gorm.DB, bc discountdomain.BookingContext, lock bool) (discountdomain.Resolution, error) {
	if bc.Course.ID == 0 || bc.Participants <= 0 {
		return discountdomain.Resolution{}, discountdomain.ErrInvalidContext
	}
	if bc.At.IsZero() {
		bc.At = s.clock.Now()
	}

	original := bc.OriginalPrice
	if !original.IsPositive() {
		original = discountdomain.OriginalPrice(bc.Course, bc.Interval, bc.Participants, bc.Days)
	}
	res := discountdomain.Resolution{
		OriginalPrice:  original,
		DiscountType:   discountdomain.ClassNone,
		DiscountAmount: decimal.Zero,
		FinalPrice:     original,
	}

	winner, class, err := s.selectRule(ctx, conn, bc)
	if err != nil {
		return discountdomain.Resolution{}, err
	}
	if winner != nil {
		id := winner.ID
		res.DiscountType = class
		res.DiscountSourceID = &id
		res.DiscountAmount = discountdomain.Amount(winner.Type, winner.Value, original)
		res.FinalPrice = original.Sub(res.DiscountAmount)
		if strings.TrimSpace(bc.PromoCode) != "" {
			res.CodeStatus = discountdomain.CodeIgnored
			res.CodeReason = discountdomain.ReasonDiscountNotStacked
		}
		return res, nil
	}

	if strings.TrimSpace(bc.PromoCode) == "" {
		return res, nil
	}
	return s.applyCode(ctx, conn, bc, res, lock)
}

func (s *Service) selectRule(ctx context.Context, conn *gorm.DB, bc discountdomain.BookingContext) (*discountdomain.Rule, discountdomain.Class, error) {
	if bc.Interval != nil {
		items, err := s.repo.ListIntervalDiscounts(ctx, conn, bc.Interval.ID)
		if err != nil {
			return nil, "", err
		}
		rules := make([]discountdomain.Rule, 0, len(items))
		for _, d := range items {
			if d.CourseID != bc.Course.ID {
				continue
			}
			rules = append(rules, d.Rule())
		}
		if r := discountdomain.SelectRule(rules, bc.At, bc.Participants, bc.Days); r != nil {
			return r, discountdomain.ClassInterval, nil
		}
	}

	items, err := s.repo.ListCourseDiscounts(ctx, conn, bc.Course.ID)
	if err != nil {
		return nil, "", err
	}
	rules := make([]discountdomain.Rule, 0, len(items))
	for _, d := range items {
		rules = append(rules, d.Rule())
	}
	if r := discountdomain.SelectRule(rules, bc.At, bc.Participants, bc.Days); r != nil {
		return r, discountdomain.ClassCourse, nil
	}
	return nil, "", nil
}

func (s *Service) applyCode(ctx context.Context, conn *gorm.DB, bc discountdomain.BookingContext, res discountdomain.Resolution, lock bool) (discountdomain.Resolution, error) {
	start := time.Now()
	code, err := s.repo.FindCode(ctx, conn, bc.PromoCode, lock)
	if lock {
		s.metrics.ObserveDBLockWait(metrics.LockResourcePromoCode, time.Since(start))
	}
	if err != nil {
		return discountdomain.Resolution{}, err
	}
	if code == nil {
		return declined(res, discountdomain.ReasonCodeNotFound), nil
	}

	redeemed := false
	if bc.BookingID != nil {
		redeemed, err = s.repo.HasBookingUsage(ctx, conn, code.ID, *bc.BookingID)
		if err != nil {
			return discountdomain.Resolution{}, err
		}
	}

	uses, err := s.repo.CountUsages(ctx, conn, code.ID, bc.ClientID, bc.BookingID)
	if err != nil {
		return discountdomain.Resolution{}, err
	}

	check := *code
	if redeemed && check.RemainingUses != nil {
		// the booking's own redemption already took a use
		restored := *check.RemainingUses + 1
		check.RemainingUses = &restored
	}
	if reason := discountdomain.CheckCode(check, bc, res.OriginalPrice, uses); reason != "" {
		return declined(res, reason), nil
	}

	id := code.ID
	res.DiscountType = discountdomain.ClassCode
	res.DiscountSourceID = &id
	res.DiscountAmount = discountdomain.CodeAmount(*code, res.OriginalPrice)
	res.FinalPrice = res.OriginalPrice.Sub(res.DiscountAmount)
	res.CodeStatus = discountdomain.CodeApplied
	res.AlreadyRedeemed = redeemed
	return res, nil
}

func declined(res discountdomain.Resolution, reason string) discountdomain.Resolution {
	res.CodeStatus = discountdomain.CodeDeclined
	res.CodeReason = reason
	return res
}

// Redeem consumes one use of a code for a booking. It must run in the same
// transaction as the booking insert.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, req discountdomain.RedeemRequest) error {
	if req.CodeID == 0 || req.BookingID == 0 || req.Amount.IsNegative() {
		return discountdomain.ErrInvalidRedeem
	}

	start := time.Now()
	code, err := s.repo.LockCodeByID(ctx, tx, req.CodeID)
	s.metrics.ObserveDBLockWait(metrics.LockResourcePromoCode, time.Since(start))
	if err != nil {
		return err
	}
	if code == nil {
		return discountdomain.ErrCodeNotFound
	}

	now := s.clock.Now()
	if !code.Unlimited() {
		ok, err := s.repo.DecrementRemaining(ctx, tx, code.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return discountdomain.ErrCodeExhausted
		}
	}

	return s.repo.InsertUsage(ctx, tx, &discountdomain.Usage{
		ID:             s.genID.Generate(),
		DiscountCodeID: code.ID,
		UserID:         req.UserID,
		BookingID:      req.BookingID,
		Amount:         req.Amount,
		UsedAt:         now,
	})
}

// Release tombstones the booking's usage of a code and restores the use on
// capped codes. Releasing a code the booking never redeemed is a no-op.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, req discountdomain.ReleaseRequest) error {
	if req.CodeID == 0 || req.BookingID == 0 {
		return discountdomain.ErrInvalidRedeem
	}

	start := time.Now()
	code, err := s.repo.LockCodeByID(ctx, tx, req.CodeID)
	s.metrics.ObserveDBLockWait(metrics.LockResourcePromoCode, time.Since(start))
	if err != nil {
		return err
	}

	now := s.clock.Now()
	released, err := s.repo.ReleaseUsages(ctx, tx, req.CodeID, req.BookingID, now)
	if err != nil {
		return err
	}
	// deleted codes keep no counter to restore
	if released == 0 || code == nil || code.Unlimited() {
		return nil
	}
	for range released {
		if err := s.repo.IncrementRemaining(ctx, tx, code.ID, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListUsages(ctx context.Context, codeID snowflake.ID) ([]discountdomain.Usage, error) {
	return s.repo.ListUsages(ctx, s.db, codeID)
}
