package voucherservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

//go:generate mockgen -source=voucherservice.go -destination=mock_voucherservice.go -package=voucherservice

type Repo interface {
	GetByCode(ctx context.Context, code string) (*domain.Voucher, error)
	GetByID(ctx context.Context, id int64) (*domain.Voucher, error)
	LockByID(ctx context.Context, id int64) (*domain.Voucher, error)
	CountUserUsages(ctx context.Context, voucherID, userID int64) (int, error)
	IncrementUsage(ctx context.Context, voucherID int64) (bool, error)
	InsertUsages(ctx context.Context, usages []domain.VoucherUsage) error
	Create(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error)
	ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Voucher, error)
	Deactivate(ctx context.Context, id, instructorID int64) (bool, error)
}

type Service struct {
	repo Repo
	now  func() time.Time
}

func New(repo Repo) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

var (
	ErrVoucherExhausted   = errors.New("voucher exhausted")
	ErrVoucherUnavailable = errors.New("voucher is no longer available")
	ErrVoucherNotFound    = errors.New("voucher not found")
	ErrVoucherCodeTaken   = errors.New("voucher code already exists")
	ErrInvalidDefinition  = errors.New("invalid voucher")
)

const (
	MsgNotFound        = "voucher not found"
	MsgInactive        = "voucher is not active"
	MsgNotStarted      = "voucher is not valid yet"
	MsgExpired         = "voucher has expired"
	MsgUsageLimit      = "voucher usage limit reached"
	MsgNotApplicable   = "voucher does not apply to these courses"
	MsgPerUserLimit    = "voucher already used the maximum number of times"
	MsgBelowMinimum    = "order amount is below the voucher minimum"
	MsgApplied         = "voucher applied"
	percentDenominator = 100
)

// ApplyResult is the outcome of validating a code against a cart. Discounts is keyed by course id.
type ApplyResult struct {
	Valid         bool
	VoucherID     int64
	Code          string
	Discounts     map[int64]int64
	TotalDiscount int64
	Message       string
}

func invalid(msg string) *ApplyResult {
	return &ApplyResult{Message: msg, Discounts: map[int64]int64{}}
}

// Apply validates code for the user's cart and computes the per-course discounts.
// It never consumes the voucher.
func (s *Service) Apply(ctx context.Context, code string, userID int64, courses []domain.CourseQuote) (*ApplyResult, error) {
	code = normalizeCode(code)
	v, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		zap.L().Error("failed to load voucher", zap.Error(err))
		return nil, err
	}
	if v == nil {
		return invalid(MsgNotFound), nil
	}
	if v.Status != domain.VoucherStatusActive {
		return invalid(MsgInactive), nil
	}
	now := s.now()
	if now.Before(v.StartDate) {
		return invalid(MsgNotStarted), nil
	}
	if !now.Before(v.EndDate) {
		return invalid(MsgExpired), nil
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return invalid(MsgUsageLimit), nil
	}

	applicable := applicableCourses(v, courses)
	if len(applicable) == 0 {
		return invalid(MsgNotApplicable), nil
	}

	if v.UsagePerUser != nil {
		used, err := s.repo.CountUserUsages(ctx, v.ID, userID)
		if err != nil {
			zap.L().Error("failed to count voucher usages", zap.Error(err))
			return nil, err
		}
		if used >= *v.UsagePerUser {
			return invalid(MsgPerUserLimit), nil
		}
	}

	var applicableSum int64
	for _, c := range applicable {
		applicableSum += c.PriceCents
	}
	if v.MinOrderCents != nil && applicableSum < *v.MinOrderCents {
		return invalid(MsgBelowMinimum), nil
	}

	res := &ApplyResult{
		Valid:     true,
		VoucherID: v.ID,
		Code:      v.Code,
		Discounts: make(map[int64]int64, len(courses)),
		Message:   MsgApplied,
	}
	for _, c := range courses {
		res.Discounts[c.CourseID] = 0
	}
	for _, c := range applicable {
		d := Discount(v, c.PriceCents)
		res.Discounts[c.CourseID] = d
		res.TotalDiscount += d
	}
	return res, nil
}

// Discount is the discount a voucher grants on one course price.
func Discount(v *domain.Voucher, priceCents int64) int64 {
	var d int64
	switch v.DiscountType {
	case domain.DiscountTypePercent:
		d = decimal.NewFromInt(priceCents).
			Mul(decimal.NewFromInt(v.DiscountValue)).
			Div(decimal.NewFromInt(percentDenominator)).
			Floor().
			IntPart()
		if v.MaxDiscountCents != nil && d > *v.MaxDiscountCents {
			d = *v.MaxDiscountCents
		}
	case domain.DiscountTypeFixed:
		d = v.DiscountValue
	}
	if d > priceCents {
		d = priceCents
	}
	if d < 0 {
		d = 0
	}
	return d
}

func applicableCourses(v *domain.Voucher, courses []domain.CourseQuote) []domain.CourseQuote {
	var out []domain.CourseQuote
	for _, c := range courses {
		switch v.Scope {
		case domain.VoucherScopeAllCourses:
			if c.InstructorID == v.InstructorID {
				out = append(out, c)
			}
		case domain.VoucherScopeSpecificCourses:
			for _, id := range v.ApplicableCourseIDs {
				if id == c.CourseID {
					out = append(out, c)
					break
				}
			}
		}
	}
	return out
}

// EnsureAvailable is the cheap re-check done before a checkout attempt is opened.
func (s *Service) EnsureAvailable(ctx context.Context, voucherID int64) error {
	v, err := s.repo.GetByID(ctx, voucherID)
	if err != nil {
		zap.L().Error("failed to load voucher", zap.Error(err))
		return err
	}
	if v == nil || v.Status != domain.VoucherStatusActive || !s.now().Before(v.EndDate) {
		return ErrVoucherUnavailable
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return ErrVoucherExhausted
	}
	return nil
}

// RecordUsage consumes the order's voucher. It must run inside the settlement transaction:
// the voucher row stays locked until commit, so the per-user count cannot be raced.
func (s *Service) RecordUsage(ctx context.Context, order *domain.Order) error {
	if order.VoucherID == nil {
		return nil
	}
	v, err := s.repo.LockByID(ctx, *order.VoucherID)
	if err != nil {
		zap.L().Error("failed to lock voucher", zap.Error(err))
		return err
	}
	if v == nil {
		return ErrVoucherExhausted
	}
	if v.UsagePerUser != nil {
		used, err := s.repo.CountUserUsages(ctx, v.ID, order.UserID)
		if err != nil {
			zap.L().Error("failed to count voucher usages", zap.Error(err))
			return err
		}
		if used >= *v.UsagePerUser {
			zap.L().Info("per-user voucher cap reached at settlement",
				zap.String("order_number", order.OrderNumber), zap.Int64("user_id", order.UserID))
			return ErrVoucherExhausted
		}
	}

	ok, err := s.repo.IncrementUsage(ctx, v.ID)
	if err != nil {
		zap.L().Error("failed to increment voucher usage", zap.Error(err))
		return err
	}
	if !ok {
		zap.L().Info("voucher cap reached at settlement", zap.String("order_number", order.OrderNumber))
		return ErrVoucherExhausted
	}

	usages := make([]domain.VoucherUsage, 0, len(order.Items))
	for _, item := range order.Items {
		if item.DiscountCents <= 0 {
			continue
		}
		usages = append(usages, domain.VoucherUsage{
			VoucherID:     *order.VoucherID,
			UserID:        order.UserID,
			OrderID:       order.ID,
			CourseID:      item.EntityID,
			OriginalCents: item.GrossCents(),
			DiscountCents: item.DiscountCents,
		})
	}
	if err := s.repo.InsertUsages(ctx, usages); err != nil {
		zap.L().Error("failed to record voucher usage", zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Create(ctx context.Context, instructorID int64, v *domain.Voucher) (*domain.Voucher, error) {
	v.InstructorID = instructorID
	v.Code = normalizeCode(v.Code)
	v.Status = domain.VoucherStatusActive
	v.UsedCount = 0
	if err := checkDefinition(v); err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, v)
	if err != nil {
		zap.L().Error("failed to create voucher", zap.Error(err))
		return nil, err
	}
	if created == nil {
		return nil, ErrVoucherCodeTaken
	}
	return created, nil
}

func checkDefinition(v *domain.Voucher) error {
	switch {
	case v.Code == "":
		return fmt.Errorf("%w: code is required", ErrInvalidDefinition)
	case v.DiscountType == domain.DiscountTypePercent && (v.DiscountValue < 1 || v.DiscountValue > percentDenominator):
		return fmt.Errorf("%w: percent discount must be between 1 and 100", ErrInvalidDefinition)
	case v.DiscountType == domain.DiscountTypeFixed && v.DiscountValue <= 0:
		return fmt.Errorf("%w: fixed discount must be positive", ErrInvalidDefinition)
	case v.DiscountType != domain.DiscountTypePercent && v.DiscountType != domain.DiscountTypeFixed:
		return fmt.Errorf("%w: unknown discount type", ErrInvalidDefinition)
	case v.Scope == domain.VoucherScopeSpecificCourses && len(v.ApplicableCourseIDs) == 0:
		return fmt.Errorf("%w: specific scope needs at least one course", ErrInvalidDefinition)
	case v.Scope != domain.VoucherScopeSpecificCourses && v.Scope != domain.VoucherScopeAllCourses:
		return fmt.Errorf("%w: unknown scope", ErrInvalidDefinition)
	case !v.StartDate.Before(v.EndDate):
		return fmt.Errorf("%w: start date must precede end date", ErrInvalidDefinition)
	case v.UsageLimit != nil && *v.UsageLimit <= 0:
		return fmt.Errorf("%w: usage limit must be positive", ErrInvalidDefinition)
	case v.UsagePerUser != nil && *v.UsagePerUser <= 0:
		return fmt.Errorf("%w: per-user limit must be positive", ErrInvalidDefinition)
	}
	if v.ApplicableCourseIDs == nil {
		v.ApplicableCourseIDs = []int64{}
	}
	return nil
}

func (s *Service) ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Voucher, error) {
	vouchers, err := s.repo.ListByInstructor(ctx, instructorID)
	if err != nil {
		zap.L().Error("failed to list vouchers", zap.Error(err))
		return nil, err
	}
	return vouchers, nil
}

func (s *Service) Deactivate(ctx context.Context, instructorID, id int64) error {
	ok, err := s.repo.Deactivate(ctx, id, instructorID)
	if err != nil {
		zap.L().Error("failed to deactivate voucher", zap.Error(err))
		return err
	}
	if !ok {
		return ErrVoucherNotFound
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
