package orderrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

const orderColumns = `id, order_number, user_id, status, currency, subtotal_cents, discount_cents, total_cents,
        voucher_id, voucher_code, created_at, paid_at, cancel_at, refunded_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.Currency, &o.SubtotalCents, &o.DiscountCents,
		&o.TotalCents, &o.VoucherID, &o.VoucherCode, &o.CreatedAt, &o.PaidAt, &o.CancelAt, &o.RefundedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts the order and its items. Callers run it inside a transaction.
func (r *Repository) Create(ctx context.Context, order *domain.Order) error {
	query := `
        INSERT INTO orders (order_number, user_id, status, currency, subtotal_cents, discount_cents, total_cents, voucher_id, voucher_code)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query, order.OrderNumber, order.UserID, order.Status, order.Currency, order.SubtotalCents,
		order.DiscountCents, order.TotalCents, order.VoucherID, order.VoucherCode).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		zap.L().Error("can't save order", zap.Error(err))
		return err
	}

	itemQuery := `
        INSERT INTO order_items (order_id, entity_type, entity_id, instructor_id, title, unit_price_cents, quantity, discount_cents)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := r.db.QueryRow(ctx, itemQuery, order.ID, item.EntityType, item.EntityID, item.InstructorID, item.Title,
			item.UnitPriceCents, item.Quantity, item.DiscountCents).Scan(&item.ID)
		if err != nil {
			zap.L().Error("can't save order item", zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *Repository) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	return r.getWithItems(ctx, query, orderNumber)
}

// LockByNumber selects the order FOR UPDATE; settlement of one order is serialized on this row.
func (r *Repository) LockByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1 FOR UPDATE`
	return r.getWithItems(ctx, query, orderNumber)
}

func (r *Repository) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.getWithItems(ctx, query, id)
}

func (r *Repository) getWithItems(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find order", zap.Error(err))
		return nil, err
	}
	items, err := r.items(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (r *Repository) items(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	query := `
        SELECT id, order_id, entity_type, entity_id, instructor_id, title, unit_price_cents, quantity, discount_cents
        FROM order_items
        WHERE order_id = $1
        ORDER BY id
    `
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		zap.L().Error("can't get order items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.EntityType, &it.EntityID, &it.InstructorID, &it.Title,
			&it.UnitPriceCents, &it.Quantity, &it.DiscountCents); err != nil {
			zap.L().Error("can't scan order item row", zap.Error(err))
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		zap.L().Error("can't get orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			zap.L().Error("can't scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// Cancel moves an owned PENDING order to CANCELLED and reports whether a row changed.
func (r *Repository) Cancel(ctx context.Context, orderNumber string, userID int64, at time.Time) (bool, error) {
	query := `
        UPDATE orders SET status = $1, cancel_at = $2
        WHERE order_number = $3 AND user_id = $4 AND status = $5
    `
	tag, err := r.db.Exec(ctx, query, domain.OrderStatusCancelled, at, orderNumber, userID, domain.OrderStatusPending)
	if err != nil {
		zap.L().Error("can't cancel order", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelByID is the system-initiated cancel used when a settlement can never succeed.
func (r *Repository) CancelByID(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `UPDATE orders SET status = $1, cancel_at = $2 WHERE id = $3 AND status = $4`
	tag, err := r.db.Exec(ctx, query, domain.OrderStatusCancelled, at, id, domain.OrderStatusPending)
	if err != nil {
		zap.L().Error("can't cancel order", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkPaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `UPDATE orders SET status = $1, paid_at = $2 WHERE id = $3 AND status = $4`
	tag, err := r.db.Exec(ctx, query, domain.OrderStatusPaid, at, id, domain.OrderStatusPending)
	if err != nil {
		zap.L().Error("can't mark order paid", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) MarkRefunded(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `UPDATE orders SET status = $1, refunded_at = $2 WHERE id = $3 AND status = $4`
	tag, err := r.db.Exec(ctx, query, domain.OrderStatusRefunded, at, id, domain.OrderStatusPaid)
	if err != nil {
		zap.L().Error("can't mark order refunded", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes an owned PENDING or CANCELLED order that never saw a payment attempt.
func (r *Repository) Delete(ctx context.Context, orderNumber string, userID int64) (bool, error) {
	itemsQuery := `
        DELETE FROM order_items
        WHERE order_id = (
            SELECT o.id FROM orders o
            WHERE o.order_number = $1 AND o.user_id = $2 AND o.status IN ($3, $4)
              AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)
        )
    `
	if _, err := r.db.Exec(ctx, itemsQuery, orderNumber, userID, domain.OrderStatusPending, domain.OrderStatusCancelled); err != nil {
		zap.L().Error("can't delete order items", zap.Error(err))
		return false, err
	}
	query := `
        DELETE FROM orders o
        WHERE o.order_number = $1 AND o.user_id = $2 AND o.status IN ($3, $4)
          AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = o.id)
    `
	tag, err := r.db.Exec(ctx, query, orderNumber, userID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	if err != nil {
		zap.L().Error("can't delete order", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
