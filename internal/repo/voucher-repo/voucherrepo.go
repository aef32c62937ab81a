package voucherrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{db: db}
}

const voucherColumns = `id, instructor_id, code, scope, discount_type, discount_value, max_discount_cents, min_order_cents,
        usage_limit, usage_per_user, used_count, start_date, end_date, status, applicable_course_ids, created_at`

func scanVoucher(row pgx.Row) (*domain.Voucher, error) {
	var v domain.Voucher
	err := row.Scan(&v.ID, &v.InstructorID, &v.Code, &v.Scope, &v.DiscountType, &v.DiscountValue, &v.MaxDiscountCents,
		&v.MinOrderCents, &v.UsageLimit, &v.UsagePerUser, &v.UsedCount, &v.StartDate, &v.EndDate, &v.Status,
		&v.ApplicableCourseIDs, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM instructor_vouchers WHERE code = $1`
	return r.get(ctx, query, code)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM instructor_vouchers WHERE id = $1`
	return r.get(ctx, query, id)
}

// LockByID takes the row lock that serializes settlements redeeming the same voucher.
func (r *Repository) LockByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM instructor_vouchers WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *Repository) get(ctx context.Context, query string, arg any) (*domain.Voucher, error) {
	v, err := scanVoucher(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find voucher", zap.Error(err))
		return nil, err
	}
	return v, nil
}

// CountUserUsages counts the orders on which the user redeemed the voucher.
func (r *Repository) CountUserUsages(ctx context.Context, voucherID, userID int64) (int, error) {
	query := `SELECT COUNT(DISTINCT order_id) FROM instructor_voucher_usages WHERE voucher_id = $1 AND user_id = $2`
	var n int
	if err := r.db.QueryRow(ctx, query, voucherID, userID).Scan(&n); err != nil {
		zap.L().Error("can't count voucher usages", zap.Error(err))
		return 0, err
	}
	return n, nil
}

// IncrementUsage is the compare-and-increment on used_count; false means the cap was reached.
func (r *Repository) IncrementUsage(ctx context.Context, voucherID int64) (bool, error) {
	query := `
        UPDATE instructor_vouchers
        SET used_count = used_count + 1
        WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
    `
	tag, err := r.db.Exec(ctx, query, voucherID)
	if err != nil {
		zap.L().Error("can't increment voucher usage", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) InsertUsages(ctx context.Context, usages []domain.VoucherUsage) error {
	query := `
        INSERT INTO instructor_voucher_usages (voucher_id, user_id, order_id, course_id, original_cents, discount_cents)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	for _, u := range usages {
		if _, err := r.db.Exec(ctx, query, u.VoucherID, u.UserID, u.OrderID, u.CourseID, u.OriginalCents, u.DiscountCents); err != nil {
			zap.L().Error("can't save voucher usage", zap.Error(err))
			return err
		}
	}
	return nil
}

// Create returns nil when the code is already taken.
func (r *Repository) Create(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error) {
	query := `
        INSERT INTO instructor_vouchers (instructor_id, code, scope, discount_type, discount_value, max_discount_cents,
            min_order_cents, usage_limit, usage_per_user, start_date, end_date, status, applicable_course_ids)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (code) DO NOTHING
        RETURNING ` + voucherColumns
	created, err := scanVoucher(r.db.QueryRow(ctx, query, v.InstructorID, v.Code, v.Scope, v.DiscountType, v.DiscountValue,
		v.MaxDiscountCents, v.MinOrderCents, v.UsageLimit, v.UsagePerUser, v.StartDate, v.EndDate, v.Status, v.ApplicableCourseIDs))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't save voucher", zap.Error(err))
		return nil, err
	}
	return created, nil
}

func (r *Repository) ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM instructor_vouchers WHERE instructor_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, instructorID)
	if err != nil {
		zap.L().Error("can't list vouchers", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			zap.L().Error("can't scan voucher row", zap.Error(err))
			return nil, err
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}

func (r *Repository) Deactivate(ctx context.Context, id, instructorID int64) (bool, error) {
	query := `UPDATE instructor_vouchers SET status = $1 WHERE id = $2 AND instructor_id = $3 AND status = $4`
	tag, err := r.db.Exec(ctx, query, domain.VoucherStatusInactive, id, instructorID, domain.VoucherStatusActive)
	if err != nil {
		zap.L().Error("can't deactivate voucher", zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
