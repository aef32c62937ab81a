package testutil

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

func sortedIDs[V any](m map[int64]V) []int64 {
	return slices.Sorted(maps.Keys(m))
}

func copyOrder(o domain.Order) *domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return &o
}

type OrderRepo struct{ s *Store }

func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) (err error) {
	r.s.exec(ctx, func(st *state) {
		for _, o := range st.orders {
			if o.OrderNumber == order.OrderNumber {
				err = fmt.Errorf("duplicate order number %s", order.OrderNumber)
				return
			}
		}
		order.ID = st.nextID()
		if order.CreatedAt.IsZero() {
			order.CreatedAt = r.s.now()
		}
		for i := range order.Items {
			order.Items[i].ID = st.nextID()
			order.Items[i].OrderID = order.ID
		}
		st.orders[order.ID] = *copyOrder(*order)
	})
	return err
}

func (r *OrderRepo) find(ctx context.Context, match func(domain.Order) bool) *domain.Order {
	var out *domain.Order
	r.s.exec(ctx, func(st *state) {
		for _, id := range sortedIDs(st.orders) {
			if o := st.orders[id]; match(o) {
				out = copyOrder(o)
				return
			}
		}
	})
	return out
}

func (r *OrderRepo) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.find(ctx, func(o domain.Order) bool { return o.OrderNumber == orderNumber }), nil
}

func (r *OrderRepo) LockByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.GetByNumber(ctx, orderNumber)
}

func (r *OrderRepo) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.find(ctx, func(o domain.Order) bool { return o.ID == id }), nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	r.s.exec(ctx, func(st *state) {
		ids := sortedIDs(st.orders)
		slices.Reverse(ids)
		for _, id := range ids {
			if o := st.orders[id]; o.UserID == userID {
				out = append(out, *copyOrder(o))
			}
		}
	})
	return out, nil
}

// move is the guarded single-row update shared by the order transitions.
func (r *OrderRepo) move(ctx context.Context, match func(domain.Order) bool, from, to string, set func(*domain.Order)) bool {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		for _, id := range sortedIDs(st.orders) {
			o := st.orders[id]
			if !match(o) || o.Status != from {
				continue
			}
			o.Status = to
			set(&o)
			st.orders[id] = o
			ok = true
			return
		}
	})
	return ok
}

func (r *OrderRepo) Cancel(ctx context.Context, orderNumber string, userID int64, at time.Time) (bool, error) {
	return r.move(ctx, func(o domain.Order) bool { return o.OrderNumber == orderNumber && o.UserID == userID },
		domain.OrderStatusPending, domain.OrderStatusCancelled, func(o *domain.Order) { o.CancelAt = &at }), nil
}

func (r *OrderRepo) CancelByID(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.move(ctx, func(o domain.Order) bool { return o.ID == id },
		domain.OrderStatusPending, domain.OrderStatusCancelled, func(o *domain.Order) { o.CancelAt = &at }), nil
}

func (r *OrderRepo) MarkPaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.move(ctx, func(o domain.Order) bool { return o.ID == id },
		domain.OrderStatusPending, domain.OrderStatusPaid, func(o *domain.Order) { o.PaidAt = &at }), nil
}

func (r *OrderRepo) MarkRefunded(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.move(ctx, func(o domain.Order) bool { return o.ID == id },
		domain.OrderStatusPaid, domain.OrderStatusRefunded, func(o *domain.Order) { o.RefundedAt = &at }), nil
}

func (r *OrderRepo) Delete(ctx context.Context, orderNumber string, userID int64) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		for id, o := range st.orders {
			if o.OrderNumber != orderNumber || o.UserID != userID {
				continue
			}
			if o.Status != domain.OrderStatusPending && o.Status != domain.OrderStatusCancelled {
				return
			}
			for _, p := range st.payments {
				if p.OrderID == id {
					return
				}
			}
			delete(st.orders, id)
			ok = true
			return
		}
	})
	return ok, nil
}

type VoucherRepo struct{ s *Store }

func (r *VoucherRepo) find(ctx context.Context, match func(domain.Voucher) bool) *domain.Voucher {
	var out *domain.Voucher
	r.s.exec(ctx, func(st *state) {
		for _, v := range st.vouchers {
			if match(v) {
				out = &v
				return
			}
		}
	})
	return out
}

func (r *VoucherRepo) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	return r.find(ctx, func(v domain.Voucher) bool { return v.Code == code }), nil
}

func (r *VoucherRepo) GetByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	return r.find(ctx, func(v domain.Voucher) bool { return v.ID == id }), nil
}

// LockByID is GetByID: transactions already run one at a time.
func (r *VoucherRepo) LockByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	return r.GetByID(ctx, id)
}

func (r *VoucherRepo) CountUserUsages(ctx context.Context, voucherID, userID int64) (int, error) {
	orders := map[int64]bool{}
	r.s.exec(ctx, func(st *state) {
		for _, u := range st.usages {
			if u.VoucherID == voucherID && u.UserID == userID {
				orders[u.OrderID] = true
			}
		}
	})
	return len(orders), nil
}

func (r *VoucherRepo) IncrementUsage(ctx context.Context, voucherID int64) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		v, found := st.vouchers[voucherID]
		if !found || (v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit) {
			return
		}
		v.UsedCount++
		st.vouchers[voucherID] = v
		ok = true
	})
	return ok, nil
}

func (r *VoucherRepo) InsertUsages(ctx context.Context, usages []domain.VoucherUsage) error {
	r.s.exec(ctx, func(st *state) {
		for _, u := range usages {
			u.ID = st.nextID()
			u.CreatedAt = r.s.now()
			st.usages = append(st.usages, u)
		}
	})
	return nil
}

// Create returns nil when the code is already taken.
func (r *VoucherRepo) Create(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error) {
	var out *domain.Voucher
	r.s.exec(ctx, func(st *state) {
		for _, existing := range st.vouchers {
			if existing.Code == v.Code {
				return
			}
		}
		created := *v
		created.ID = st.nextID()
		created.CreatedAt = r.s.now()
		st.vouchers[created.ID] = created
		out = &created
	})
	return out, nil
}

func (r *VoucherRepo) ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Voucher, error) {
	var out []domain.Voucher
	r.s.exec(ctx, func(st *state) {
		ids := sortedIDs(st.vouchers)
		slices.Reverse(ids)
		for _, id := range ids {
			if v := st.vouchers[id]; v.InstructorID == instructorID {
				out = append(out, v)
			}
		}
	})
	return out, nil
}

func (r *VoucherRepo) Deactivate(ctx context.Context, id, instructorID int64) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		v, found := st.vouchers[id]
		if !found || v.InstructorID != instructorID || v.Status != domain.VoucherStatusActive {
			return
		}
		v.Status = domain.VoucherStatusInactive
		st.vouchers[id] = v
		ok = true
	})
	return ok, nil
}

type PaymentRepo struct{ s *Store }

func (r *PaymentRepo) NextAttemptRef(ctx context.Context) (int64, error) {
	var ref int64
	r.s.exec(ctx, func(st *state) { ref = st.nextID() })
	return ref, nil
}

// Insert stores a payment attempt unless (provider, provider_txn) is already known.
func (r *PaymentRepo) Insert(ctx context.Context, p *domain.Payment) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		for _, existing := range st.payments {
			if existing.Provider == p.Provider && existing.ProviderTxn == p.ProviderTxn {
				return
			}
		}
		p.ID = st.nextID()
		p.CreatedAt = r.s.now()
		st.payments[p.ID] = *p
		ok = true
	})
	return ok, nil
}

func (r *PaymentRepo) find(ctx context.Context, newest bool, match func(domain.Payment) bool) *domain.Payment {
	var out *domain.Payment
	r.s.exec(ctx, func(st *state) {
		ids := sortedIDs(st.payments)
		if newest {
			slices.Reverse(ids)
		}
		for _, id := range ids {
			if p := st.payments[id]; match(p) {
				out = &p
				return
			}
		}
	})
	return out
}

func (r *PaymentRepo) GetByProviderTxn(ctx context.Context, provider, txn string) (*domain.Payment, error) {
	return r.find(ctx, false, func(p domain.Payment) bool { return p.Provider == provider && p.ProviderTxn == txn }), nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.find(ctx, false, func(p domain.Payment) bool { return p.ID == id }), nil
}

func (r *PaymentRepo) GetOpenAttempt(ctx context.Context, orderID int64, provider string) (*domain.Payment, error) {
	return r.find(ctx, true, func(p domain.Payment) bool {
		return p.OrderID == orderID && p.Provider == provider && p.Status == domain.PaymentStatusPending
	}), nil
}

func (r *PaymentRepo) GetSucceededByOrder(ctx context.Context, orderID int64) (*domain.Payment, error) {
	return r.find(ctx, false, func(p domain.Payment) bool {
		return p.OrderID == orderID && p.Status == domain.PaymentStatusSucceeded
	}), nil
}

func (r *PaymentRepo) ListByOrder(ctx context.Context, orderID int64) ([]domain.Payment, error) {
	var out []domain.Payment
	r.s.exec(ctx, func(st *state) {
		for _, id := range sortedIDs(st.payments) {
			if p := st.payments[id]; p.OrderID == orderID {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

func (r *PaymentRepo) UpdateStatus(ctx context.Context, id int64, from []string, to, providerRef string, confirmedAt *time.Time, raw []byte) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		p, found := st.payments[id]
		if !found || !slices.Contains(from, p.Status) {
			return
		}
		p.Status = to
		if providerRef != "" {
			p.ProviderRef = providerRef
		}
		if confirmedAt != nil {
			p.ConfirmedAt = confirmedAt
		}
		if len(raw) > 0 {
			p.RawPayload = raw
		}
		st.payments[id] = p
		ok = true
	})
	return ok, nil
}

func (r *PaymentRepo) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	r.s.exec(ctx, func(st *state) {
		for id, p := range st.payments {
			if p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(before) {
				p.Status = domain.PaymentStatusCancelled
				st.payments[id] = p
				n++
			}
		}
	})
	return n, nil
}

func (r *PaymentRepo) InsertRefund(ctx context.Context, rf *domain.Refund) error {
	r.s.exec(ctx, func(st *state) {
		rf.ID = st.nextID()
		rf.CreatedAt = r.s.now()
		st.refunds[rf.ID] = *rf
	})
	return nil
}

func (r *PaymentRepo) GetRefund(ctx context.Context, id int64) (*domain.Refund, error) {
	var out *domain.Refund
	r.s.exec(ctx, func(st *state) {
		if rf, ok := st.refunds[id]; ok {
			out = &rf
		}
	})
	return out, nil
}

func (r *PaymentRepo) GetRefundByProviderRef(ctx context.Context, providerRef string) (*domain.Refund, error) {
	var out *domain.Refund
	r.s.exec(ctx, func(st *state) {
		for _, id := range sortedIDs(st.refunds) {
			if rf := st.refunds[id]; providerRef != "" && rf.ProviderRef == providerRef {
				out = &rf
				return
			}
		}
	})
	return out, nil
}

func (r *PaymentRepo) SetRefundProviderRef(ctx context.Context, id int64, providerRef string) error {
	r.s.exec(ctx, func(st *state) {
		if rf, ok := st.refunds[id]; ok {
			rf.ProviderRef = providerRef
			st.refunds[id] = rf
		}
	})
	return nil
}

func (r *PaymentRepo) UpdateRefundStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		rf, found := st.refunds[id]
		if !found || rf.Status != from {
			return
		}
		rf.Status = to
		if to == domain.RefundStatusCompleted {
			rf.CompletedAt = &at
		}
		st.refunds[id] = rf
		ok = true
	})
	return ok, nil
}

func (r *PaymentRepo) RefundedAmounts(ctx context.Context, paymentID int64) (active, completed int64, err error) {
	r.s.exec(ctx, func(st *state) {
		for _, rf := range st.refunds {
			if rf.PaymentID != paymentID {
				continue
			}
			if rf.Status != domain.RefundStatusFailed {
				active += rf.AmountCents
			}
			if rf.Status == domain.RefundStatusCompleted {
				completed += rf.AmountCents
			}
		}
	})
	return active, completed, nil
}

type BalanceRepo struct{ s *Store }

func (r *BalanceRepo) EnsureBalance(ctx context.Context, userID int64) error {
	r.s.exec(ctx, func(st *state) {
		if _, ok := st.balances[userID]; !ok {
			st.balances[userID] = domain.Balance{UserID: userID, UpdatedAt: r.s.now()}
		}
	})
	return nil
}

func (r *BalanceRepo) GetBalance(ctx context.Context, userID int64) (*domain.Balance, error) {
	var out *domain.Balance
	r.s.exec(ctx, func(st *state) {
		if b, ok := st.balances[userID]; ok {
			out = &b
		}
	})
	return out, nil
}

// ApplyDelta mirrors the guarded UPDATE: nil means the guard rejected the change.
func (r *BalanceRepo) ApplyDelta(ctx context.Context, userID, availableDelta, pendingDelta int64, requireUnfrozen bool) (*domain.Balance, error) {
	var out *domain.Balance
	r.s.exec(ctx, func(st *state) {
		b, ok := st.balances[userID]
		if !ok || b.AvailableCents+availableDelta < 0 || b.PendingCents+pendingDelta < 0 || (requireUnfrozen && b.Frozen) {
			return
		}
		b.AvailableCents += availableDelta
		b.PendingCents += pendingDelta
		b.UpdatedAt = r.s.now()
		st.balances[userID] = b
		out = &b
	})
	return out, nil
}

func (r *BalanceRepo) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	r.s.exec(ctx, func(st *state) {
		tx.ID = st.nextID()
		tx.CreatedAt = r.s.now()
		st.txs = append(st.txs, *tx)
	})
	return nil
}

func (r *BalanceRepo) ListTransactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	var out []domain.Transaction
	r.s.exec(ctx, func(st *state) {
		for i := len(st.txs) - 1; i >= 0; i-- {
			if st.txs[i].UserID == userID {
				out = append(out, st.txs[i])
			}
		}
	})
	return out, nil
}

func (r *BalanceRepo) CreditsByReference(ctx context.Context, referenceID string) ([]domain.Transaction, error) {
	var out []domain.Transaction
	r.s.exec(ctx, func(st *state) {
		for _, t := range st.txs {
			if t.ReferenceID == referenceID && t.Type == domain.TxTypeCredit {
				out = append(out, t)
			}
		}
	})
	slices.SortStableFunc(out, func(a, b domain.Transaction) int { return cmp.Compare(a.UserID, b.UserID) })
	return out, nil
}

func (r *BalanceRepo) SumLedger(ctx context.Context, userID int64) (*domain.LedgerTotals, error) {
	var t domain.LedgerTotals
	r.s.exec(ctx, func(st *state) {
		for _, tx := range st.txs {
			if tx.UserID != userID {
				continue
			}
			switch tx.Type {
			case domain.TxTypeCredit:
				t.Available += tx.AmountCents
			case domain.TxTypeRefund:
				t.Available += tx.AmountCents
				t.Pending -= tx.AmountCents
			case domain.TxTypeDebit:
				t.Available -= tx.AmountCents
			case domain.TxTypeWithdrawalHold:
				t.Available -= tx.AmountCents
				t.Pending += tx.AmountCents
			case domain.TxTypeWithdrawalCompleted:
				t.Pending -= tx.AmountCents
			}
			t.Entries++
			balanceAfter, pendingAfter := tx.BalanceAfterCents, tx.PendingAfterCents
			t.LastBalanceAfter = &balanceAfter
			t.LastPendingAfter = &pendingAfter
		}
	})
	return &t, nil
}

func (r *BalanceRepo) SetFrozen(ctx context.Context, userID int64, frozen bool, reason string) error {
	r.s.exec(ctx, func(st *state) {
		if b, ok := st.balances[userID]; ok {
			b.Frozen = frozen
			b.FrozenReason = reason
			b.UpdatedAt = r.s.now()
			st.balances[userID] = b
		}
	})
	return nil
}

func (r *BalanceRepo) ListBalanceUsers(ctx context.Context) ([]int64, error) {
	var out []int64
	r.s.exec(ctx, func(st *state) { out = sortedIDs(st.balances) })
	return out, nil
}

type WithdrawalRepo struct{ s *Store }

func (r *WithdrawalRepo) CreateWithdrawal(ctx context.Context, w *domain.Withdrawal) (*domain.Withdrawal, error) {
	r.s.exec(ctx, func(st *state) {
		w.ID = st.nextID()
		w.CreatedAt = r.s.now()
		st.withdrawals[w.ID] = *w
	})
	return w, nil
}

func (r *WithdrawalRepo) find(ctx context.Context, match func(domain.Withdrawal) bool) *domain.Withdrawal {
	var out *domain.Withdrawal
	r.s.exec(ctx, func(st *state) {
		for _, id := range sortedIDs(st.withdrawals) {
			if w := st.withdrawals[id]; match(w) {
				out = &w
				return
			}
		}
	})
	return out
}

func (r *WithdrawalRepo) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	return r.find(ctx, func(w domain.Withdrawal) bool { return w.ID == id }), nil
}

func (r *WithdrawalRepo) FindByPayout(ctx context.Context, provider, batchID string) (*domain.Withdrawal, error) {
	return r.find(ctx, func(w domain.Withdrawal) bool {
		return w.PayoutProvider == provider && w.PayoutBatchID == batchID
	}), nil
}

func (r *WithdrawalRepo) update(ctx context.Context, id int64, from []string, set func(*domain.Withdrawal)) bool {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		w, found := st.withdrawals[id]
		if !found || !slices.Contains(from, w.Status) {
			return
		}
		set(&w)
		st.withdrawals[id] = w
		ok = true
	})
	return ok
}

func (r *WithdrawalRepo) UpdateStatus(ctx context.Context, id int64, from []string, to, note string, at time.Time) (bool, error) {
	return r.update(ctx, id, from, func(w *domain.Withdrawal) {
		w.Status = to
		if note != "" {
			w.Note = note
		}
		if to == domain.WithdrawalStatusCompleted {
			w.CompletedAt = &at
		}
	}), nil
}

func (r *WithdrawalRepo) Approve(ctx context.Context, id int64, provider, batchID string) (bool, error) {
	return r.update(ctx, id, []string{domain.WithdrawalStatusPending}, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalStatusApproved
		w.PayoutProvider = provider
		w.PayoutBatchID = batchID
	}), nil
}

func (r *WithdrawalRepo) MarkProcessing(ctx context.Context, id int64, itemID string, at time.Time) (bool, error) {
	return r.update(ctx, id, []string{domain.WithdrawalStatusApproved}, func(w *domain.Withdrawal) {
		w.Status = domain.WithdrawalStatusProcessing
		w.PayoutItemID = itemID
		w.ProcessedAt = &at
	}), nil
}

func (r *WithdrawalRepo) list(ctx context.Context, newest bool, match func(domain.Withdrawal) bool) []domain.Withdrawal {
	var out []domain.Withdrawal
	r.s.exec(ctx, func(st *state) {
		ids := sortedIDs(st.withdrawals)
		if newest {
			slices.Reverse(ids)
		}
		for _, id := range ids {
			if w := st.withdrawals[id]; match(w) {
				out = append(out, w)
			}
		}
	})
	return out
}

func (r *WithdrawalRepo) GetWithdrawalsByUserID(ctx context.Context, userID int64) ([]domain.Withdrawal, error) {
	return r.list(ctx, true, func(w domain.Withdrawal) bool { return w.UserID == userID }), nil
}

func (r *WithdrawalRepo) ListByStatus(ctx context.Context, status string) ([]domain.Withdrawal, error) {
	return r.list(ctx, false, func(w domain.Withdrawal) bool { return w.Status == status }), nil
}

type EventRepo struct{ s *Store }

// Record reports false when (provider, idempotency key) was seen before.
func (r *EventRepo) Record(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	var ok bool
	r.s.exec(ctx, func(st *state) {
		for _, existing := range st.events {
			if existing.Provider == ev.Provider && existing.IdempotencyKey == ev.IdempotencyKey {
				return
			}
		}
		ev.ID = st.nextID()
		ev.ReceivedAt = r.s.now()
		st.events[ev.ID] = *ev
		ok = true
	})
	return ok, nil
}

func (r *EventRepo) SetResult(ctx context.Context, id int64, result string) error {
	r.s.exec(ctx, func(st *state) {
		if ev, ok := st.events[id]; ok {
			ev.Result = result
			st.events[id] = ev
		}
	})
	return nil
}

type OutboxRepo struct{ s *Store }

func (r *OutboxRepo) Enqueue(ctx context.Context, topic, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if key == "" {
		key = uuid.NewString()
	}
	r.s.exec(ctx, func(st *state) {
		for _, m := range st.outbox {
			if m.MessageKey == key {
				return
			}
		}
		st.outbox = append(st.outbox, domain.OutboxMessage{
			ID:         st.nextID(),
			MessageKey: key,
			Topic:      topic,
			Payload:    body,
			Status:     domain.OutboxStatusPending,
			CreatedAt:  r.s.now(),
		})
	})
	return nil
}
