package services_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/stipendly/payday_backend/internal/core/domain"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/core/services"
)

type TakeoverServiceTestSuite struct {
	suite.Suite
	mockRepo *MockTakeoverRepository
	service  portssvc.TakeoverSvcFacade
}

func (suite *TakeoverServiceTestSuite) SetupTest() {
	suite.mockRepo = new(MockTakeoverRepository)
	suite.service = services.NewTakeoverService(suite.mockRepo)
}

func link(archived, absorbed, balance string) domain.AbsorptionLink {
	return domain.AbsorptionLink{
		ArchivedAs:      archived,
		AbsorbedBy:      absorbed,
		ArchivedBalance: decimal.RequireFromString(balance),
	}
}

func (suite *TakeoverServiceTestSuite) TestTakeOverBalances_NothingToDo() {
	ctx := context.Background()

	suite.mockRepo.On("FindAbsorptionsWithBalance", ctx).
		Return([]domain.AbsorptionLink{}, nil).Once()

	err := suite.service.TakeOverBalances(ctx)

	suite.Require().NoError(err)
	suite.mockRepo.AssertNotCalled(suite.T(), "ResolveAbsorptions", ctx, nil)
}

func (suite *TakeoverServiceTestSuite) TestTakeOverBalances_ResolvesChain() {
	ctx := context.Background()
	// archived-a was absorbed by mid, and mid was itself absorbed by final:
	// the first pass drains archived-a into mid, the second drains mid into
	// final, the third finds nothing left.
	first := []domain.AbsorptionLink{link("archived-a", "mid", "10")}
	second := []domain.AbsorptionLink{link("mid", "final", "10")}

	suite.mockRepo.On("FindAbsorptionsWithBalance", ctx).Return(first, nil).Once()
	suite.mockRepo.On("ResolveAbsorptions", ctx, first).Return(nil).Once()
	suite.mockRepo.On("FindAbsorptionsWithBalance", ctx).Return(second, nil).Once()
	suite.mockRepo.On("ResolveAbsorptions", ctx, second).Return(nil).Once()
	suite.mockRepo.On("FindAbsorptionsWithBalance", ctx).
		Return([]domain.AbsorptionLink{}, nil).Once()

	err := suite.service.TakeOverBalances(ctx)

	suite.Require().NoError(err)
	suite.mockRepo.AssertExpectations(suite.T())
}

func (suite *TakeoverServiceTestSuite) TestTakeOverBalances_CyclicGraphHitsIterationBound() {
	ctx := context.Background()
	// a and b absorbed each other; the balance ping-pongs forever.
	cyclic := []domain.AbsorptionLink{link("a", "b", "5")}

	suite.mockRepo.On("FindAbsorptionsWithBalance", ctx).Return(cyclic, nil).Times(10)
	suite.mockRepo.On("ResolveAbsorptions", ctx, cyclic).Return(nil).Times(10)

	err := suite.service.TakeOverBalances(ctx)

	suite.Require().ErrorIs(err, services.ErrTakeoverLoop)
	suite.mockRepo.AssertNumberOfCalls(suite.T(), "FindAbsorptionsWithBalance", 10)
}

func TestTakeoverServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TakeoverServiceTestSuite))
}
