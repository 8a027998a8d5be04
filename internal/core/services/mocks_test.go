package services_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsgw "github.com/stipendly/payday_backend/internal/core/ports/gateways"
	portsrepo "github.com/stipendly/payday_backend/internal/core/ports/repositories"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
)

// --- Mock PaydayRepository ---

type MockPaydayRepository struct {
	mock.Mock
}

var _ portsrepo.PaydayRepositoryFacade = (*MockPaydayRepository)(nil)

func (m *MockPaydayRepository) InsertPayday(ctx context.Context) (*domain.PaydayEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaydayEvent), args.Error(1)
}

func (m *MockPaydayRepository) FindOpenPayday(ctx context.Context) (*domain.PaydayEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaydayEvent), args.Error(1)
}

func (m *MockPaydayRepository) MarkStageDone(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPaydayRepository) EndPayday(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockPaydayRepository) SetCardHoldFailures(ctx context.Context, n int) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockPaydayRepository) IncrementCreditFailures(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPaydayRepository) UpdatePaydayStats(ctx context.Context, tsStart time.Time) error {
	args := m.Called(ctx, tsStart)
	return args.Error(0)
}

func (m *MockPaydayRepository) UpdateCachedAmounts(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Mock PayinRepository ---

type MockPayinRepository struct {
	mock.Mock
}

var _ portsrepo.PayinRepositoryFacade = (*MockPayinRepository)(nil)

func (m *MockPayinRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockPayinRepository) Commit(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPayinRepository) Rollback(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPayinRepository) PreparePayin(ctx context.Context, tx pgx.Tx, tsStart time.Time) error {
	args := m.Called(ctx, tx, tsStart)
	return args.Error(0)
}

func (m *MockPayinRepository) ChargeableParticipants(ctx context.Context, tx pgx.Tx) ([]domain.ParticipantSnapshot, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ParticipantSnapshot), args.Error(1)
}

func (m *MockPayinRepository) MarkCardHoldOK(ctx context.Context, tx pgx.Tx, participantIDs []string) error {
	args := m.Called(ctx, tx, participantIDs)
	return args.Error(0)
}

func (m *MockPayinRepository) FundSubscriptions(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPayinRepository) TransferTakes(ctx context.Context, tx pgx.Tx, tsStart time.Time) error {
	args := m.Called(ctx, tx, tsStart)
	return args.Error(0)
}

func (m *MockPayinRepository) ProcessDraws(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockPayinRepository) PendingPayments(ctx context.Context, tx pgx.Tx, since time.Time) ([]domain.PaymentRecord, error) {
	args := m.Called(ctx, tx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PaymentRecord), args.Error(1)
}

func (m *MockPayinRepository) NegativeBalanceHolders(ctx context.Context, tx pgx.Tx) ([]domain.ParticipantSnapshot, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ParticipantSnapshot), args.Error(1)
}

func (m *MockPayinRepository) CommitBalances(ctx context.Context, tx pgx.Tx) ([]domain.BalanceCommit, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BalanceCommit), args.Error(1)
}

func (m *MockPayinRepository) RecordPayments(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

// --- Mock TakeoverRepository ---

type MockTakeoverRepository struct {
	mock.Mock
}

var _ portsrepo.TakeoverRepositoryFacade = (*MockTakeoverRepository)(nil)

func (m *MockTakeoverRepository) FindAbsorptionsWithBalance(ctx context.Context) ([]domain.AbsorptionLink, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AbsorptionLink), args.Error(1)
}

func (m *MockTakeoverRepository) ResolveAbsorptions(ctx context.Context, links []domain.AbsorptionLink) error {
	args := m.Called(ctx, links)
	return args.Error(0)
}

// --- Mock PayoutRepository ---

type MockPayoutRepository struct {
	mock.Mock
}

var _ portsrepo.PayoutRepositoryFacade = (*MockPayoutRepository)(nil)

func (m *MockPayoutRepository) PayableParticipants(ctx context.Context) ([]domain.Participant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Participant), args.Error(1)
}

// --- Mock ExchangeRepository ---

type MockExchangeRepository struct {
	mock.Mock
}

var _ portsrepo.ExchangeRepositoryFacade = (*MockExchangeRepository)(nil)

func (m *MockExchangeRepository) RecordExchange(ctx context.Context, rec domain.ExchangeRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockExchangeRepository) ChargeExchangesBetween(ctx context.Context, start, end time.Time) ([]domain.ExchangeRecord, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExchangeRecord), args.Error(1)
}

// --- Mock CardProcessor ---

type MockCardProcessor struct {
	mock.Mock
}

var _ portsgw.CardProcessor = (*MockCardProcessor)(nil)

func (m *MockCardProcessor) CreateHold(ctx context.Context, participantID string, amount decimal.Decimal) (*domain.CardHold, error) {
	args := m.Called(ctx, participantID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CardHold), args.Error(1)
}

func (m *MockCardProcessor) CaptureHold(ctx context.Context, hold domain.CardHold, amount decimal.Decimal) error {
	args := m.Called(ctx, hold, amount)
	return args.Error(0)
}

func (m *MockCardProcessor) CancelHold(ctx context.Context, hold domain.CardHold) error {
	args := m.Called(ctx, hold)
	return args.Error(0)
}

func (m *MockCardProcessor) SetHoldState(ctx context.Context, hold domain.CardHold, state domain.HoldState) error {
	args := m.Called(ctx, hold, state)
	return args.Error(0)
}

func (m *MockCardProcessor) QueryHolds(ctx context.Context, state domain.HoldState) ([]domain.CardHold, error) {
	args := m.Called(ctx, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CardHold), args.Error(1)
}

func (m *MockCardProcessor) CreditAccount(ctx context.Context, participantID string, amount decimal.Decimal) error {
	args := m.Called(ctx, participantID, amount)
	return args.Error(0)
}

// --- Mock Notifier ---

type MockNotifier struct {
	mock.Mock
}

var _ portsgw.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) EnqueueChargeOutcome(ctx context.Context, templateKey string, participantID string, exchange domain.ExchangeRecord, extra map[string]any) error {
	args := m.Called(ctx, templateKey, participantID, exchange, extra)
	return args.Error(0)
}

// --- Mock service facades (for the orchestrator) ---

type MockSettlementSvc struct {
	mock.Mock
}

var _ portssvc.SettlementSvcFacade = (*MockSettlementSvc)(nil)

func (m *MockSettlementSvc) Payin(ctx context.Context, tsStart time.Time) error {
	args := m.Called(ctx, tsStart)
	return args.Error(0)
}

type MockTakeoverSvc struct {
	mock.Mock
}

var _ portssvc.TakeoverSvcFacade = (*MockTakeoverSvc)(nil)

func (m *MockTakeoverSvc) TakeOverBalances(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockPayoutSvc struct {
	mock.Mock
}

var _ portssvc.PayoutSvcFacade = (*MockPayoutSvc)(nil)

func (m *MockPayoutSvc) Payout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockHoldSvc struct {
	mock.Mock
}

var _ portssvc.HoldSvcFacade = (*MockHoldSvc)(nil)

func (m *MockHoldSvc) CreateCardHolds(ctx context.Context, tx pgx.Tx) (map[string]domain.CardHold, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.CardHold), args.Error(1)
}

func (m *MockHoldSvc) SettleCardHolds(ctx context.Context, tx pgx.Tx, holds map[string]domain.CardHold) error {
	args := m.Called(ctx, tx, holds)
	return args.Error(0)
}
