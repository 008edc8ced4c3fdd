package routes

import (
	"net/http"

	"github.com/dukerupert/botica/internal/handler/api"
	"github.com/dukerupert/botica/internal/router"
)

// APIDeps contains dependencies for the storefront API routes
type APIDeps struct {
	AuthHandler         *api.AuthHandler
	ProfileHandler      *api.ProfileHandler
	CartHandler         *api.CartHandler
	PrescriptionHandler *api.PrescriptionHandler
	CheckoutHandler     *api.CheckoutHandler
	OrdersHandler       *api.OrdersHandler

	// LoginLimiter throttles login attempts per client IP.
	LoginLimiter router.Middleware

	// BodyLimit caps JSON request bodies.
	BodyLimit router.Middleware

	// DocumentLimit caps prescription upload bodies.
	DocumentLimit router.Middleware
}

// OpsDeps contains dependencies for the operational routes
type OpsDeps struct {
	Health  http.HandlerFunc
	Metrics http.Handler
}
