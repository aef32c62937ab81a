// Package testutil is an in-memory stand-in for the Postgres repositories. Transactions are
// serialized and roll back to a snapshot taken at Begin.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
)

type txKey struct{}

type state struct {
	seq         int64
	orders      map[int64]domain.Order
	vouchers    map[int64]domain.Voucher
	usages      []domain.VoucherUsage
	payments    map[int64]domain.Payment
	refunds     map[int64]domain.Refund
	balances    map[int64]domain.Balance
	txs         []domain.Transaction
	withdrawals map[int64]domain.Withdrawal
	events      map[int64]domain.WebhookEvent
	outbox      []domain.OutboxMessage
}

func newState() *state {
	return &state{
		orders:      map[int64]domain.Order{},
		vouchers:    map[int64]domain.Voucher{},
		payments:    map[int64]domain.Payment{},
		refunds:     map[int64]domain.Refund{},
		balances:    map[int64]domain.Balance{},
		withdrawals: map[int64]domain.Withdrawal{},
		events:      map[int64]domain.WebhookEvent{},
	}
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Rows are stored by value and never mutated in place, so
// shallow copies of slice fields are safe.
func (st *state) clone() *state {
	return &state{
		seq:         st.seq,
		orders:      cloneMap(st.orders),
		vouchers:    cloneMap(st.vouchers),
		usages:      append([]domain.VoucherUsage(nil), st.usages...),
		payments:    cloneMap(st.payments),
		refunds:     cloneMap(st.refunds),
		balances:    cloneMap(st.balances),
		txs:         append([]domain.Transaction(nil), st.txs...),
		withdrawals: cloneMap(st.withdrawals),
		events:      cloneMap(st.events),
		outbox:      append([]domain.OutboxMessage(nil), st.outbox...),
	}
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

// Store is the shared state behind every repository view. It also implements pg.TXManager.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ pg.TXManager = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// Begin runs fn with the store locked. Any error or panic restores the state seen at entry.
// A nested call joins the outer transaction.
func (s *Store) Begin(ctx context.Context, fn pg.TransactionalFn) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, s))
}

// exec runs one statement, autocommitted when ctx carries no transaction.
func (s *Store) exec(ctx context.Context, fn func(st *state)) {
	if s.inTx(ctx) {
		fn(s.st)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *Store) Orders() *OrderRepo { return &OrderRepo{s} }
func (s *Store) Vouchers() *VoucherRepo { return &VoucherRepo{s} }
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s} }
func (s *Store) Balances() *BalanceRepo { return &BalanceRepo{s} }
func (s *Store) Withdrawals() *WithdrawalRepo { return &WithdrawalRepo{s} }
func (s *Store) Events() *EventRepo { return &EventRepo{s} }
func (s *Store) Outbox() *OutboxRepo { return &OutboxRepo{s} }

// VoucherUsages lists the usage rows of one voucher.
func (s *Store) VoucherUsages(voucherID int64) []domain.VoucherUsage {
	var out []domain.VoucherUsage
	s.exec(context.Background(), func(st *state) {
		for _, u := range st.usages {
			if u.VoucherID == voucherID {
				out = append(out, u)
			}
		}
	})
	return out
}

// Messages lists the outbox messages of one topic in insertion order.
func (s *Store) Messages(topic string) []domain.OutboxMessage {
	var out []domain.OutboxMessage
	s.exec(context.Background(), func(st *state) {
		for _, m := range st.outbox {
			if m.Topic == topic {
				out = append(out, m)
			}
		}
	})
	return out
}

// Refunds lists the refunds of one order.
func (s *Store) Refunds(orderID int64) []domain.Refund {
	var out []domain.Refund
	s.exec(context.Background(), func(st *state) {
		for _, id := range sortedIDs(st.refunds) {
			if rf := st.refunds[id]; rf.OrderID == orderID {
				out = append(out, rf)
			}
		}
	})
	return out
}
