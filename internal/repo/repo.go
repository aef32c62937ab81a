package repo

import (
	"github.com/GlebRadaev/coursepay/internal/pg"
	balancerepo "github.com/GlebRadaev/coursepay/internal/repo/balance-repo"
	eventrepo "github.com/GlebRadaev/coursepay/internal/repo/event-repo"
	orderrepo "github.com/GlebRadaev/coursepay/internal/repo/order-repo"
	outboxrepo "github.com/GlebRadaev/coursepay/internal/repo/outbox-repo"
	paymentrepo "github.com/GlebRadaev/coursepay/internal/repo/payment-repo"
	voucherrepo "github.com/GlebRadaev/coursepay/internal/repo/voucher-repo"
	withdrawalrepo "github.com/GlebRadaev/coursepay/internal/repo/withdrawal-repo"
)

type Repositories struct {
	OrderRepo      *orderrepo.Repository
	VoucherRepo    *voucherrepo.Repository
	PaymentRepo    *paymentrepo.Repository
	BalanceRepo    *balancerepo.Repository
	WithdrawalRepo *withdrawalrepo.Repository
	EventRepo      *eventrepo.Repository
	OutboxRepo     *outboxrepo.Repository
	TxManager      pg.TXManager
}

func New(conn pg.Database, txManager pg.TXManager) *Repositories {
	return &Repositories{
		OrderRepo:      orderrepo.New(conn),
		VoucherRepo:    voucherrepo.New(conn),
		PaymentRepo:    paymentrepo.New(conn),
		BalanceRepo:    balancerepo.New(conn),
		WithdrawalRepo: withdrawalrepo.New(conn),
		EventRepo:      eventrepo.New(conn),
		OutboxRepo:     outboxrepo.New(conn),
		TxManager:      txManager,
	}
}
