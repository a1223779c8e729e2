package orders

import (
	"context"
	"regexp"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/returnlab/portal/internal/apperr"
	"github.com/returnlab/portal/internal/metrics"
	"github.com/returnlab/portal/internal/repository"
	"github.com/returnlab/portal/internal/shopify"
)

// Deliberately loose: catches obvious typos without rejecting valid addresses
// on RFC edge cases.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type StoreSource interface {
	ListActive(ctx context.Context) ([]*repository.Store, error)
}

type ReturnStatusSource interface {
	StatusesByExternalOrderIDs(ctx context.Context, externalOrderIDs []string) ([]*repository.OrderReturnStatus, error)
}

type Connector interface {
	SearchOrdersByEmail(ctx context.Context, store shopify.Storefront, email string) ([]shopify.Order, error)
}

type SearchResult struct {
	Orders  []shopify.Order `json:"orders"`
	Total   int             `json:"total"`
	Message string          `json:"message,omitempty"`
}

// Aggregator fans an order search out across every active storefront and
// merges the results.
type Aggregator struct {
	stores    StoreSource
	returns   ReturnStatusSource
	connector Connector
	logger    *zap.Logger
}

func NewAggregator(stores StoreSource, returns ReturnStatusSource, connector Connector, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		stores:    stores,
		returns:   returns,
		connector: connector,
		logger:    logger,
	}
}

// Search looks up orders by email across all active stores in parallel. One
// store failing (bad response, network error, timeout) degrades to an empty
// result for that store only and never fails the whole search.
func (a *Aggregator) Search(ctx context.Context, email string) (*SearchResult, error) {
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if !emailPattern.MatchString(email) {
		return nil, apperr.Validation("invalid email format")
	}

	metrics.OrderSearchesTotal.Inc()

	stores, err := a.stores.ListActive(ctx)
	if err != nil {
		return nil, apperr.Upstream("list active stores", err)
	}

	// An empty storefront registry is a valid operating state, not a failure.
	if len(stores) == 0 {
		return &SearchResult{Orders: []shopify.Order{}, Message: "No stores configured"}, nil
	}

	perStore := make([][]shopify.Order, len(stores))
	var g errgroup.Group
	for i, store := range stores {
		g.Go(func() error {
			sf := shopify.Storefront{
				ID:     store.ID.String(),
				Name:   store.Name,
				Domain: store.StorefrontDomain,
				Token:  store.StorefrontToken,
			}
			orders, err := a.connector.SearchOrdersByEmail(ctx, sf, email)
			if err != nil {
				a.logger.Warn("storefront lookup failed",
					zap.String("domain", store.StorefrontDomain),
					zap.Error(err))
				metrics.StorefrontErrorsTotal.WithLabelValues(store.StorefrontDomain).Inc()
				return nil
			}
			perStore[i] = orders
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]shopify.Order, 0)
	for _, orders := range perStore {
		merged = append(merged, orders...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].OrderDate.After(merged[j].OrderDate)
	})

	a.annotateExistingReturns(ctx, merged)

	return &SearchResult{Orders: merged, Total: len(merged)}, nil
}

// annotateExistingReturns attaches the status of any existing return request
// to each matching order. Read-only; a failure here loses the annotation, not
// the search.
func (a *Aggregator) annotateExistingReturns(ctx context.Context, orders []shopify.Order) {
	if len(orders) == 0 {
		return
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ExternalOrderID)
	}

	statuses, err := a.returns.StatusesByExternalOrderIDs(ctx, ids)
	if err != nil {
		a.logger.Error("existing return lookup failed", zap.Error(err))
		return
	}

	byOrderID := make(map[string]string, len(statuses))
	for _, s := range statuses {
		byOrderID[s.ExternalOrderID] = s.Status
	}

	for i := range orders {
		if status, ok := byOrderID[orders[i].ExternalOrderID]; ok {
			s := status
			orders[i].ExistingReturnStatus = &s
		}
	}
}
