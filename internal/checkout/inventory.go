package checkout

import (
	"context"
	"errors"

	"github.com/imrishuroy/go-crashcart-checkout/internal/catalog"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
	"go.uber.org/zap"
)

type reservation struct {
	productID string
	name      string
	quantity  int
	saleID    string
}

// reserve takes stock for every line. On the first failure the lines already
// reserved are released and a stock or internal error is returned.
func (s *Service) reserve(ctx context.Context, lines []pricing.PricedLine) ([]reservation, error) {
	held := make([]reservation, 0, len(lines))
	for _, l := range lines {
		r := reservation{productID: l.ProductID, name: l.Name, quantity: l.Quantity, saleID: l.SaleID}
		if err := s.catalog.Reserve(ctx, r.productID, r.quantity, r.saleID); err != nil {
			s.release(ctx, held)
			if errors.Is(err, catalog.ErrInsufficientStock) {
				return nil, newError(KindInsufficientStock, "Insufficient stock for "+displayName(r), err)
			}
			return nil, newError(KindInternal, "reserve stock", err)
		}
		held = append(held, r)
	}
	return held, nil
}

// release returns reserved stock. Failures are logged; the stock stays short.
func (s *Service) release(ctx context.Context, held []reservation) {
	for _, r := range held {
		if err := s.catalog.Release(ctx, r.productID, r.quantity, r.saleID); err != nil {
			s.logger.Error("release stock failed",
				zap.String("product_id", r.productID),
				zap.Int("quantity", r.quantity),
				zap.String("sale_id", r.saleID),
				zap.Error(err))
		}
	}
}

func displayName(r reservation) string {
	if r.name != "" {
		return r.name
	}
	return r.productID
}
