package routes

import (
	"net/http"

	"github.com/dukerupert/botica/internal/router"
)

// RegisterAPIRoutes registers the JSON routes the storefront SPA calls.
// r is expected to carry the session middleware.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	api := r.Mount("/api", deps.BodyLimit)
	docs := r.Mount("/api/prescriptions", deps.DocumentLimit)

	// Auth and profile
	auth := api.Mount("/auth")
	auth.Post("/login", deps.AuthHandler.Login, deps.LoginLimiter)
	auth.Post("/logout", deps.AuthHandler.Logout)
	api.Get("/profile", deps.ProfileHandler.Get)
	api.Put("/profile", deps.ProfileHandler.Update)

	// Cart
	cart := api.Mount("/cart")
	cart.Get("", deps.CartHandler.View)
	cart.Post("/items", deps.CartHandler.Add)
	cart.Delete("/items/{id}", deps.CartHandler.Remove)

	// Prescription drafts. Document uploads get the larger body limit.
	drafts := api.Mount("/prescriptions")
	drafts.Get("", deps.PrescriptionHandler.List)
	docs.Post("", deps.PrescriptionHandler.Create)
	docs.Put("/{id}/document", deps.PrescriptionHandler.ReplaceDocument)
	drafts.Post("/{id}/retry", deps.PrescriptionHandler.Retry)
	drafts.Delete("/{id}", deps.PrescriptionHandler.Delete)

	// Checkout
	checkout := api.Mount("/checkout")
	checkout.Post("/submit", deps.CheckoutHandler.Submit)
	checkout.Get("/decision", deps.CheckoutHandler.Decision)
	checkout.Post("/purchase", deps.CheckoutHandler.Purchase)
	checkout.Post("/abandon", deps.CheckoutHandler.Abandon)

	// Orders
	orders := api.Mount("/orders")
	orders.Get("/summary", deps.OrdersHandler.Summary)
	orders.Get("", deps.OrdersHandler.List)
}

// RegisterOpsRoutes registers health and metrics endpoints. They carry no
// session so probes don't mint cookies.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/healthz", deps.Health)
	r.Handle(http.MethodGet, "/metrics", deps.Metrics)
}
