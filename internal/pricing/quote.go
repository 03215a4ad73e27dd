package pricing

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
)

var quotesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_quotes_total",
		Help: "Quotes generated, labeled by pricing basis.",
	},
	[]string{"basis"},
)

// RemoteCalculator prices an order through the order service.
type RemoteCalculator interface {
	CalculateOrder(ctx context.Context, items []domain.LineItem, tier domain.BuyerTier, shipTo *domain.Address) (domain.OrderCalculation, error)
}

// Quoter produces priced quotes for checkout sessions. It asks the order
// service first and falls back to the local engine when the call fails, so
// the buyer always sees a total. Each quote carries a sequence number from
// a single counter; a quote with a lower sequence than the one already on
// the session is stale and must be dropped.
type Quoter struct {
	remote RemoteCalculator
	engine *Engine
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewQuoter returns a quoter backed by the given remote calculator and
// local engine. remote may be nil, in which case every quote is estimated.
func NewQuoter(remote RemoteCalculator, engine *Engine, logger *slog.Logger) *Quoter {
	return &Quoter{remote: remote, engine: engine, logger: logger}
}

// Quote prices the session's line snapshot. The returned quote is tagged
// confirmed when the numbers came from the order service and estimated
// when they were computed locally.
func (q *Quoter) Quote(ctx context.Context, sess *domain.CheckoutSession, tier domain.BuyerTier) *domain.Quote {
	seq := q.seq.Add(1)

	basis := domain.BasisEstimated
	var calc domain.OrderCalculation
	if q.remote != nil {
		remote, err := q.remote.CalculateOrder(ctx, sess.Items, tier, sess.ShippingAddress)
		if err != nil {
			q.logger.WarnContext(ctx, "order service calculation failed, using local estimate",
				slog.String("checkout_id", sess.ID),
				slog.String("error", err.Error()),
			)
		} else {
			calc = remote
			basis = domain.BasisConfirmed
		}
	}
	if basis == domain.BasisEstimated {
		calc = q.engine.Calculate(sess.Items, tier)
	}

	quotesTotal.WithLabelValues(string(basis)).Inc()
	return &domain.Quote{
		Calculation: calc,
		Basis:       basis,
		Seq:         seq,
		GeneratedAt: time.Now().UTC(),
	}
}

// Fresher reports whether candidate should replace current. A nil current
// accepts anything; otherwise only a higher sequence wins, which drops
// responses that arrive out of order.
func Fresher(current, candidate *domain.Quote) bool {
	if candidate == nil {
		return false
	}
	return current == nil || candidate.Seq > current.Seq
}
