package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-futures/internal/types"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SimGatewayTestSuite struct {
	suite.Suite
	gateway *SimGateway
	ctx     context.Context
}

func TestSimGatewaySuite(t *testing.T) {
	suite.Run(t, new(SimGatewayTestSuite))
}

func (s *SimGatewayTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.gateway = NewSimGateway([]string{"sim"}, SimConfig{
		InitialBalance: decimal.NewFromInt(10000),
		CommissionRate: decimal.Zero,
		MarginRate:     decimal.NewFromFloat(0.1),
		Multiplier:     decimal.NewFromInt(1),
		Currency:       "USDT",
	}, nil)
	s.gateway.OnQuote(types.Quote{Symbol: "BTCUSDT", LastPrice: 100, AskPrice1: 101, BidPrice1: 99})
}

func (s *SimGatewayTestSuite) insert(direction types.Direction, offset types.Offset, volume int, price float64) (types.Order, error) {
	return s.gateway.InsertOrder(s.ctx, types.InsertOrderRequest{
		AccountID:  "sim",
		Symbol:     "BTCUSDT",
		Direction:  direction,
		Offset:     offset,
		Volume:     volume,
		LimitPrice: price,
	})
}

func (s *SimGatewayTestSuite) TestCrossingOrderFillsImmediately() {
	order, err := s.insert(types.DirectionBuy, types.OffsetOpen, 2, 101)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, order.Status)
	s.Equal(0, order.VolumeLeft)

	pos, err := s.gateway.Position(s.ctx, "sim", "BTCUSDT")
	s.Require().NoError(err)
	s.Equal(2, pos.LongToday)
	s.Equal(101.0, pos.LongAvgPrice)
	s.Equal(-2.0, pos.FloatProfit)
}

func (s *SimGatewayTestSuite) TestRestingOrderFillsOnLaterQuote() {
	order, err := s.insert(types.DirectionBuy, types.OffsetOpen, 1, 99)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusPending, order.Status)

	orders, err := s.gateway.Orders(s.ctx, "sim")
	s.Require().NoError(err)
	s.Len(orders, 1)

	snapshot := types.NewSnapshot("BTCUSDT")
	snapshot.Quote = &types.Quote{Symbol: "BTCUSDT", LastPrice: 98, AskPrice1: 98.5, BidPrice1: 97.5}
	s.gateway.OnSnapshot(snapshot)

	orders, err = s.gateway.Orders(s.ctx, "sim")
	s.Require().NoError(err)
	s.Empty(orders)

	pos, _ := s.gateway.Position(s.ctx, "sim", "BTCUSDT")
	s.Equal(1, pos.Net())
	s.Equal(98.5, pos.LongAvgPrice)
}

func (s *SimGatewayTestSuite) TestCloseRealizesProfit() {
	_, err := s.insert(types.DirectionBuy, types.OffsetOpen, 2, 101)
	s.Require().NoError(err)

	s.gateway.OnQuote(types.Quote{Symbol: "BTCUSDT", LastPrice: 110, AskPrice1: 111, BidPrice1: 109})

	order, err := s.insert(types.DirectionSell, types.OffsetCloseToday, 2, 109)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, order.Status)

	info, err := s.gateway.AccountInfo(s.ctx, "sim")
	s.Require().NoError(err)
	s.InDelta(16.0, info.CloseProfit, 1e-9)
	s.InDelta(10016.0, info.Balance, 1e-9)
	s.InDelta(0.0, info.Margin, 1e-9)

	positions, err := s.gateway.Positions(s.ctx, "sim")
	s.Require().NoError(err)
	s.Empty(positions)
}

func (s *SimGatewayTestSuite) TestCloseWithoutPositionIsRejected() {
	order, err := s.insert(types.DirectionSell, types.OffsetClose, 1, 99)
	s.Error(err)
	s.True(errors.IsGatewayError(err))
	s.True(errors.HasCode(err, errors.ErrCodeOrderRejected))
	s.Equal(types.OrderStatusRejected, order.Status)
	s.Equal("insufficient position to close", order.Message)
}

func (s *SimGatewayTestSuite) TestPendingCloseReservesPosition() {
	_, err := s.insert(types.DirectionBuy, types.OffsetOpen, 1, 101)
	s.Require().NoError(err)

	_, err = s.insert(types.DirectionSell, types.OffsetClose, 1, 500)
	s.Require().NoError(err)

	_, err = s.insert(types.DirectionSell, types.OffsetClose, 1, 500)
	s.Error(err)
}

func (s *SimGatewayTestSuite) TestInsufficientFunds() {
	_, err := s.insert(types.DirectionBuy, types.OffsetOpen, 1000, 101)
	s.True(errors.HasCode(err, errors.ErrCodeOrderRejected))
}

func (s *SimGatewayTestSuite) TestShortAndCover() {
	_, err := s.insert(types.DirectionSell, types.OffsetOpen, 3, 99)
	s.Require().NoError(err)

	pos, _ := s.gateway.Position(s.ctx, "sim", "BTCUSDT")
	s.Equal(-3, pos.Net())

	s.gateway.OnQuote(types.Quote{Symbol: "BTCUSDT", LastPrice: 90, AskPrice1: 91, BidPrice1: 89})

	_, err = s.insert(types.DirectionBuy, types.OffsetClose, 3, 91)
	s.Require().NoError(err)

	info, _ := s.gateway.AccountInfo(s.ctx, "sim")
	s.InDelta(24.0, info.CloseProfit, 1e-9)
}

func (s *SimGatewayTestSuite) TestCancel() {
	order, err := s.insert(types.DirectionBuy, types.OffsetOpen, 1, 50)
	s.Require().NoError(err)

	info, _ := s.gateway.AccountInfo(s.ctx, "sim")
	s.InDelta(5.0, info.FrozenMargin, 1e-9)

	s.Require().NoError(s.gateway.CancelOrder(s.ctx, "sim", order.OrderID))
	// cancelling again is a no-op
	s.Require().NoError(s.gateway.CancelOrder(s.ctx, "sim", order.OrderID))

	orders, _ := s.gateway.Orders(s.ctx, "sim")
	s.Empty(orders)

	err = s.gateway.CancelOrder(s.ctx, "sim", "missing")
	s.True(errors.HasCode(err, errors.ErrCodeOrderNotFound))
}

func (s *SimGatewayTestSuite) TestUnknownAccount() {
	_, err := s.gateway.AccountInfo(s.ctx, "ghost")
	s.True(errors.HasCode(err, errors.ErrCodeUnknownAccount))

	_, err = s.gateway.Orders(s.ctx, "ghost")
	s.Error(err)
}

func (s *SimGatewayTestSuite) TestSnapshotFallsBackToBars() {
	series := types.NewKlineSeries("ETHUSDT", time.Minute, 2)
	series.Upsert(types.Kline{Datetime: time.Unix(60, 0), Close: 2000})

	snapshot := types.NewSnapshot("ETHUSDT")
	snapshot.Klines = series
	s.gateway.OnSnapshot(snapshot)

	order, err := s.gateway.InsertOrder(s.ctx, types.InsertOrderRequest{
		AccountID:  "sim",
		Symbol:     "ETHUSDT",
		Direction:  types.DirectionBuy,
		Offset:     types.OffsetOpen,
		Volume:     1,
		LimitPrice: 2000,
	})
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, order.Status)
	s.Equal(time.Unix(60, 0), order.InsertedAt)
}

func (s *SimGatewayTestSuite) TestDefaultSimConfig() {
	cfg := DefaultSimConfig(500)
	s.True(cfg.InitialBalance.Equal(decimal.NewFromInt(500)))
	s.Equal("USDT", cfg.Currency)
	s.Equal([]string{"sim"}, s.gateway.AccountIDs())
}
