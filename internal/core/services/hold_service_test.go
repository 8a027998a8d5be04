package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portsgw "github.com/stipendly/payday_backend/internal/core/ports/gateways"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/core/services"
)

type HoldServiceTestSuite struct {
	suite.Suite
	mockPayinRepo    *MockPayinRepository
	mockPaydayRepo   *MockPaydayRepository
	mockExchangeRepo *MockExchangeRepository
	mockProcessor    *MockCardProcessor
	service          portssvc.HoldSvcFacade
}

func (suite *HoldServiceTestSuite) SetupTest() {
	suite.mockPayinRepo = new(MockPayinRepository)
	suite.mockPaydayRepo = new(MockPaydayRepository)
	suite.mockExchangeRepo = new(MockExchangeRepository)
	suite.mockProcessor = new(MockCardProcessor)
	// Width of 1 keeps processor expectations deterministic.
	suite.service = services.NewHoldService(suite.mockPayinRepo, suite.mockPaydayRepo, suite.mockExchangeRepo, suite.mockProcessor, 1)
}

func snapshot(id, username, oldBalance, givingToday string) domain.ParticipantSnapshot {
	return domain.ParticipantSnapshot{
		ParticipantID: id,
		Username:      username,
		OldBalance:    decimal.RequireFromString(oldBalance),
		NewBalance:    decimal.RequireFromString(oldBalance),
		GivingToday:   decimal.RequireFromString(givingToday),
		HasCreditCard: true,
		Suspicion:     domain.SuspicionClear,
	}
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_SizesHoldForDebtAndGiving() {
	ctx := context.Background()
	// Owes 10, gives 25 today: 35 has to survive the processor's cut, so the
	// hold reserves the upcharged 36.36.
	p := snapshot("p1", "alice", "-10", "25")

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{}, nil).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", decimal.RequireFromString("36.36")).
		Return(&domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 3636, State: domain.HoldNew}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Len(holds, 1)
	suite.Equal("h1", holds["p1"].HoldID)
	suite.mockProcessor.AssertExpectations(suite.T())
	suite.mockPayinRepo.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_FreshHoldSufficesOnRerun() {
	ctx := context.Background()
	// A hold sized by the previous run must pass the sufficiency check
	// unchanged, or every resume would cancel and recreate it.
	p := snapshot("p1", "alice", "-10", "25")
	fresh := domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 3636, State: domain.HoldNew}

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{fresh}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Equal("h1", holds["p1"].HoldID)
	suite.mockProcessor.AssertNotCalled(suite.T(), "CreateHold", mock.Anything, mock.Anything, mock.Anything)
	suite.mockProcessor.AssertNotCalled(suite.T(), "CancelHold", mock.Anything, mock.Anything)
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_EnforcesMinimumCharge() {
	ctx := context.Background()
	p := snapshot("p1", "alice", "0", "0.50")

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{}, nil).Once()
	// 0.50 is below the floor; the hold is sized at the minimum, upcharged.
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", decimal.RequireFromString("10.00")).
		Return(&domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 1000, State: domain.HoldNew}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	_, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.mockProcessor.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_ReusesSufficientHold() {
	ctx := context.Background()
	p := snapshot("p1", "alice", "0", "9")
	existing := domain.CardHold{HoldID: "h0", ParticipantID: "p1", Amount: 1000, State: domain.HoldNew}

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{existing}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Equal("h0", holds["p1"].HoldID)
	suite.mockProcessor.AssertNotCalled(suite.T(), "CreateHold", mock.Anything, mock.Anything, mock.Anything)
	suite.mockProcessor.AssertNotCalled(suite.T(), "CancelHold", mock.Anything, mock.Anything)
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_ReplacesUndersizedHold() {
	ctx := context.Background()
	p := snapshot("p1", "alice", "0", "100")
	undersized := domain.CardHold{HoldID: "h0", ParticipantID: "p1", Amount: 1000, State: domain.HoldNew}

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{undersized}, nil).Once()
	suite.mockProcessor.On("CancelHold", mock.Anything, undersized).Return(nil).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", decimal.RequireFromString("103.30")).
		Return(&domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 10330, State: domain.HoldNew}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Equal("h1", holds["p1"].HoldID)
	suite.mockProcessor.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_CancelsStaleHolds() {
	ctx := context.Background()
	p := snapshot("p1", "alice", "0", "20")
	stale := domain.CardHold{HoldID: "h9", ParticipantID: "p9", Amount: 5000, State: domain.HoldNew}

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{stale}, nil).Once()
	suite.mockProcessor.On("CancelHold", mock.Anything, stale).Return(nil).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", decimal.RequireFromString("20.91")).
		Return(&domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 2091, State: domain.HoldNew}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Len(holds, 1)
	suite.mockProcessor.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_CorrectsMisleadingStateTags() {
	ctx := context.Background()
	p := snapshot("p1", "alice", "0", "20")
	// Tagged new, but the processor says it actually failed.
	mistagged := domain.CardHold{HoldID: "h0", ParticipantID: "p1", Amount: 2100, State: domain.HoldNew, FailureReason: "card expired"}

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{mistagged}, nil).Once()
	suite.mockProcessor.On("SetHoldState", mock.Anything, mistagged, domain.HoldFailed).Return(nil).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", decimal.RequireFromString("20.91")).
		Return(&domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 2091, State: domain.HoldNew}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 0).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p1"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Equal("h1", holds["p1"].HoldID)
	suite.mockProcessor.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_CountsDeclines() {
	ctx := context.Background()
	declined := snapshot("p1", "alice", "0", "20")
	fine := snapshot("p2", "bob", "0", "30")

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{declined, fine}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{}, nil).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", mock.Anything).
		Return(nil, &portsgw.ProcessorError{Code: "card-declined", Message: "insufficient funds"}).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p2", mock.Anything).
		Return(&domain.CardHold{HoldID: "h2", ParticipantID: "p2", Amount: 3200, State: domain.HoldNew}, nil).Once()
	suite.mockPaydayRepo.On("SetCardHoldFailures", mock.Anything, 1).Return(nil).Once()
	suite.mockPayinRepo.On("MarkCardHoldOK", mock.Anything, nil, []string{"p2"}).Return(nil).Once()

	holds, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().NoError(err)
	suite.Len(holds, 1)
	suite.Contains(holds, "p2")
	suite.mockPaydayRepo.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestCreateCardHolds_TransportErrorIsFatal() {
	ctx := context.Background()
	p := snapshot("p1", "alice", "0", "20")
	boom := errors.New("connection reset")

	suite.mockPayinRepo.On("ChargeableParticipants", ctx, nil).
		Return([]domain.ParticipantSnapshot{p}, nil).Once()
	suite.mockProcessor.On("QueryHolds", mock.Anything, domain.HoldNew).
		Return([]domain.CardHold{}, nil).Once()
	suite.mockProcessor.On("CreateHold", mock.Anything, "p1", mock.Anything).
		Return(nil, boom).Once()

	_, err := suite.service.CreateCardHolds(ctx, nil)

	suite.Require().ErrorIs(err, boom)
	suite.mockPaydayRepo.AssertNotCalled(suite.T(), "SetCardHoldFailures", mock.Anything, mock.Anything)
}

func (suite *HoldServiceTestSuite) TestSettleCardHolds_CapturesAndCancels() {
	ctx := context.Background()
	negative := snapshot("p1", "alice", "0", "0")
	negative.NewBalance = decimal.RequireFromString("-24")

	captureHold := domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 2800, State: domain.HoldNew}
	leftover := domain.CardHold{HoldID: "h2", ParticipantID: "p2", Amount: 1000, State: domain.HoldNew}
	holds := map[string]domain.CardHold{"p1": captureHold, "p2": leftover}

	suite.mockPayinRepo.On("NegativeBalanceHolders", ctx, nil).
		Return([]domain.ParticipantSnapshot{negative}, nil).Once()
	// The card is charged the upcharged 25.03; the exchange books the 24 net
	// that lands on the balance plus the 1.03 the processor keeps.
	suite.mockProcessor.On("CaptureHold", mock.Anything, captureHold, decimal.RequireFromString("25.03")).
		Return(nil).Once()
	suite.mockExchangeRepo.On("RecordExchange", mock.Anything, mock.MatchedBy(func(rec domain.ExchangeRecord) bool {
		return rec.ParticipantID == "p1" &&
			rec.Amount.Equal(decimal.RequireFromString("24")) &&
			rec.Fee.Equal(decimal.RequireFromString("1.03")) &&
			rec.Status == domain.ExchangeSucceeded
	})).Return(nil).Once()
	suite.mockProcessor.On("CancelHold", mock.Anything, leftover).Return(nil).Once()

	err := suite.service.SettleCardHolds(ctx, nil, holds)

	suite.Require().NoError(err)
	suite.Empty(holds)
	suite.mockProcessor.AssertExpectations(suite.T())
	suite.mockExchangeRepo.AssertExpectations(suite.T())
}

func (suite *HoldServiceTestSuite) TestSettleCardHolds_CaptureFailureIsFatal() {
	ctx := context.Background()
	negative := snapshot("p1", "alice", "0", "0")
	negative.NewBalance = decimal.RequireFromString("-24")
	hold := domain.CardHold{HoldID: "h1", ParticipantID: "p1", Amount: 2800, State: domain.HoldNew}
	holds := map[string]domain.CardHold{"p1": hold}
	boom := errors.New("capture timed out")

	suite.mockPayinRepo.On("NegativeBalanceHolders", ctx, nil).
		Return([]domain.ParticipantSnapshot{negative}, nil).Once()
	suite.mockProcessor.On("CaptureHold", mock.Anything, hold, decimal.RequireFromString("25.03")).
		Return(boom).Once()

	err := suite.service.SettleCardHolds(ctx, nil, holds)

	suite.Require().ErrorIs(err, boom)
}

func TestHoldServiceTestSuite(t *testing.T) {
	suite.Run(t, new(HoldServiceTestSuite))
}
