package orderservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
)

//go:generate mockgen -source=orderservice.go -destination=mock_orderservice.go -package=orderservice

type Repo interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	Cancel(ctx context.Context, orderNumber string, userID int64, at time.Time) (bool, error)
	Delete(ctx context.Context, orderNumber string, userID int64) (bool, error)
}

// Catalog is the course side of the LMS. GetCoursePrice returns nil for an unknown course.
type Catalog interface {
	GetCoursePrice(ctx context.Context, courseID int64) (*domain.CourseQuote, error)
	IsEnrolled(ctx context.Context, userID, courseID int64) (bool, error)
}

type Vouchers interface {
	Apply(ctx context.Context, code string, userID int64, courses []domain.CourseQuote) (*voucherservice.ApplyResult, error)
}

type NumberGenerator interface {
	NextOrderNumber() string
}

type Service struct {
	repo      Repo
	catalog   Catalog
	vouchers  Vouchers
	numbers   NumberGenerator
	txManager pg.TXManager
	now       func() time.Time
}

func New(repo Repo, catalog Catalog, vouchers Vouchers, numbers NumberGenerator, txManager pg.TXManager) *Service {
	return &Service{
		repo:      repo,
		catalog:   catalog,
		vouchers:  vouchers,
		numbers:   numbers,
		txManager: txManager,
		now:       time.Now,
	}
}

var (
	ErrEmptyCart         = errors.New("no courses to order")
	ErrCourseUnavailable = errors.New("course is not available for purchase")
	ErrAlreadyOwned      = errors.New("course already owned")
	ErrMixedCurrency     = errors.New("courses are priced in different currencies")
	ErrInvalidVoucher    = errors.New("invalid voucher")
	ErrNegativeTotal     = errors.New("order total is negative")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrOrderHasPayments  = errors.New("order has payment attempts")
	ErrOrderSettled      = errors.New("settled orders cannot be deleted")
)

// priceCart looks every course up in the live catalog and rejects what the user cannot buy.
func (s *Service) priceCart(ctx context.Context, userID int64, courseIDs []int64) ([]domain.CourseQuote, error) {
	courseIDs = dedupe(courseIDs)
	if len(courseIDs) == 0 {
		return nil, ErrEmptyCart
	}

	quotes := make([]domain.CourseQuote, 0, len(courseIDs))
	for _, id := range courseIDs {
		quote, err := s.catalog.GetCoursePrice(ctx, id)
		if err != nil {
			zap.L().Error("failed to price course", zap.Int64("course_id", id), zap.Error(err))
			return nil, err
		}
		if quote == nil || !quote.Published {
			return nil, ErrCourseUnavailable
		}
		owned, err := s.catalog.IsEnrolled(ctx, userID, id)
		if err != nil {
			zap.L().Error("failed to check enrollment", zap.Int64("course_id", id), zap.Error(err))
			return nil, err
		}
		if owned {
			return nil, ErrAlreadyOwned
		}
		if len(quotes) > 0 && quotes[0].Currency != quote.Currency {
			return nil, ErrMixedCurrency
		}
		quotes = append(quotes, *quote)
	}
	return quotes, nil
}

// PreviewVoucher shows what code would take off the cart. Nothing is stored.
func (s *Service) PreviewVoucher(ctx context.Context, userID int64, courseIDs []int64, code string) (*voucherservice.ApplyResult, error) {
	quotes, err := s.priceCart(ctx, userID, courseIDs)
	if err != nil {
		return nil, err
	}
	return s.vouchers.Apply(ctx, code, userID, quotes)
}

// CreateOrder prices the cart from the live catalog, applies the voucher without consuming it
// and stores the order with its snapshotted items.
func (s *Service) CreateOrder(ctx context.Context, userID int64, courseIDs []int64, voucherCode string) (*domain.Order, error) {
	quotes, err := s.priceCart(ctx, userID, courseIDs)
	if err != nil {
		return nil, err
	}

	var applied *voucherservice.ApplyResult
	if voucherCode != "" {
		res, err := s.vouchers.Apply(ctx, voucherCode, userID, quotes)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVoucher, res.Message)
		}
		applied = res
	}

	order := &domain.Order{
		OrderNumber: s.numbers.NextOrderNumber(),
		UserID:      userID,
		Status:      domain.OrderStatusPending,
		Currency:    quotes[0].Currency,
		CreatedAt:   s.now(),
	}
	for _, q := range quotes {
		item := domain.OrderItem{
			EntityType:     domain.EntityTypeCourse,
			EntityID:       q.CourseID,
			InstructorID:   q.InstructorID,
			Title:          q.Title,
			UnitPriceCents: q.PriceCents,
			Quantity:       1,
		}
		if applied != nil {
			item.DiscountCents = applied.Discounts[q.CourseID]
		}
		order.SubtotalCents += item.GrossCents()
		order.DiscountCents += item.DiscountCents
		order.Items = append(order.Items, item)
	}
	order.TotalCents = order.SubtotalCents - order.DiscountCents
	if order.TotalCents < 0 {
		return nil, ErrNegativeTotal
	}
	if applied != nil {
		order.VoucherID = &applied.VoucherID
		order.VoucherCode = applied.Code
	}

	err = s.txManager.Begin(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, order)
	})
	if err != nil {
		zap.L().Error("can't save order", zap.Error(err))
		return nil, err
	}
	zap.L().Info("order created", zap.String("order_number", order.OrderNumber), zap.Int64("total_cents", order.TotalCents))
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error) {
	order, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		zap.L().Error("failed to get order", zap.Error(err))
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		zap.L().Error("failed to get orders", zap.Error(err))
		return nil, err
	}
	return orders, nil
}

// CancelOrder is legal only while the order is PENDING.
func (s *Service) CancelOrder(ctx context.Context, userID int64, orderNumber string) error {
	ok, err := s.repo.Cancel(ctx, orderNumber, userID, s.now())
	if err != nil {
		zap.L().Error("failed to cancel order", zap.Error(err))
		return err
	}
	if ok {
		zap.L().Info("order cancelled", zap.String("order_number", orderNumber))
		return nil
	}
	if _, err := s.GetOrder(ctx, userID, orderNumber); err != nil {
		return err
	}
	return ErrOrderNotPending
}

func (s *Service) DeleteOrder(ctx context.Context, userID int64, orderNumber string) error {
	var deleted bool
	err := s.txManager.Begin(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.repo.Delete(ctx, orderNumber, userID)
		return err
	})
	if err != nil {
		zap.L().Error("failed to delete order", zap.Error(err))
		return err
	}
	if deleted {
		return nil
	}
	order, err := s.GetOrder(ctx, userID, orderNumber)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderStatusPaid || order.Status == domain.OrderStatusRefunded {
		return ErrOrderSettled
	}
	return ErrOrderHasPayments
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
