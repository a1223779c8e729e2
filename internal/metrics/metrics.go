package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReturnRequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_portal_requests_created_total",
		Help: "Total number of return requests successfully created.",
	})

	AdminActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_portal_admin_actions_total",
		Help: "Total number of admin transitions applied, by action.",
	},
		[]string{"action"},
	)

	OrderSearchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "returns_portal_order_searches_total",
		Help: "Total number of order searches performed.",
	})

	StorefrontErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_portal_storefront_errors_total",
		Help: "Total number of failed per-storefront lookups, by domain.",
	},
		[]string{"domain"},
	)

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_portal_uploads_total",
		Help: "Total number of accepted uploads, by kind.",
	},
		[]string{"kind"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "returns_portal_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)
)
