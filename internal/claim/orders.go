package claim

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/yazamuk/stockgift/internal/broker"
)

// CollarBuffer is the broker-imposed safety margin for notional market
// orders: with $100 of buying power, only $100 / 1.05 ≈ $95.24 may actually
// be ordered, leaving 5% headroom for the price collar.
var CollarBuffer = decimal.NewFromFloat(1.05)

// OrderNotional computes the collar-adjusted order amount for a gift:
// amount / 1.05, rounded half-up to 2 decimal places.
func OrderNotional(giftAmount decimal.Decimal) decimal.Decimal {
	return giftAmount.DivRound(CollarBuffer, 2)
}

// OrderPlacer submits the final market buy. No retry: a failed submission
// after successful funding is a reportable inconsistency the operator must
// reconcile via the claim attempt ledger.
type OrderPlacer struct {
	api    BrokerAPI
	logger *slog.Logger
}

// NewOrderPlacer creates an OrderPlacer.
func NewOrderPlacer(api BrokerAPI, logger *slog.Logger) *OrderPlacer {
	return &OrderPlacer{api: api, logger: logger}
}

// PlaceMarketBuy submits a market, day-time-in-force buy order for the
// collar-adjusted notional of symbol against the account.
func (p *OrderPlacer) PlaceMarketBuy(ctx context.Context, accessToken, accountID, symbol string, giftAmount decimal.Decimal) (*broker.Order, error) {
	notional := OrderNotional(giftAmount)

	order, err := p.api.CreateOrder(ctx, accessToken, accountID, broker.OrderRequest{
		Symbol:      symbol,
		Notional:    amountString(notional),
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		return nil, &OrderError{Err: err}
	}

	p.logger.Info("market buy submitted",
		"order_id", order.ID,
		"account_id", accountID,
		"symbol", symbol,
		"gift_amount", amountString(giftAmount),
		"notional", amountString(notional))
	return order, nil
}
