// routes/routes.go
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"proxy-admin/controllers"
	"proxy-admin/middleware"
	"proxy-admin/utils"
)

// Controllers bundles every handler group the router serves
type Controllers struct {
	Auth        *controllers.AuthController
	Health      *controllers.HealthController
	Reseller    *controllers.ResellerController
	SubUsers    *controllers.SubUserController
	Orders      *controllers.OrderController
	Fulfillment *controllers.FulfillmentController
	Clients     *controllers.ClientController
	Dashboard   *controllers.DashboardController
}

// RegisterRoutes sets up all the routes for the application
func RegisterRoutes(router *mux.Router, c Controllers, tokens middleware.TokenParser) {
	router.Use(middleware.RequestLogger, middleware.Recoverer)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusNotFound, "Not found")
	})

	api := router.PathPrefix("/api").Subrouter()

	// Public routes
	api.HandleFunc("/auth/login", c.Auth.Login).Methods(http.MethodPost)
	api.HandleFunc("/health", c.Health.GetHealth).Methods(http.MethodGet)

	// Admin routes
	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.AuthMiddleware(tokens), middleware.AdminMiddleware)

	admin.HandleFunc("/balance", c.Reseller.GetBalance).Methods(http.MethodGet)
	admin.HandleFunc("/pool/locations", c.Reseller.GetLocations).Methods(http.MethodGet)
	admin.HandleFunc("/pool/stats", c.Reseller.GetPoolStats).Methods(http.MethodGet)
	admin.HandleFunc("/traffic", c.Reseller.AddTraffic).Methods(http.MethodPost)
	admin.HandleFunc("/traffic/total", c.Reseller.GetTotalTraffic).Methods(http.MethodGet)
	admin.HandleFunc("/traffic/usage-trends", c.Reseller.GetUsageTrends).Methods(http.MethodGet)

	// Sub-user routes
	admin.HandleFunc("/sub-users", c.SubUsers.GetSubUsers).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/count", c.SubUsers.CountSubUsers).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/create", c.SubUsers.CreateSubUser).Methods(http.MethodPost)
	admin.HandleFunc("/sub-users/set-filters", c.SubUsers.SetFilters).Methods(http.MethodPost)
	admin.HandleFunc("/sub-users/{id}", c.SubUsers.UpdateSubUser).Methods(http.MethodPatch)
	admin.HandleFunc("/sub-users/{id}", c.SubUsers.DeleteSubUser).Methods(http.MethodDelete)
	admin.HandleFunc("/sub-users/{id}/balance", c.SubUsers.GetSubUserBalance).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/{id}/usage", c.SubUsers.GetUsage).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/{id}/usage/details", c.SubUsers.GetUsageDetails).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/{id}/usage/errors", c.SubUsers.GetUsageErrors).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/{id}/protocols", c.SubUsers.GetProtocols).Methods(http.MethodGet)
	admin.HandleFunc("/sub-users/{id}/protocols", c.SubUsers.SetProtocols).Methods(http.MethodPost)

	// Order routes
	admin.HandleFunc("/orders", c.Orders.GetOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/facets", c.Orders.GetFacets).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", c.Orders.GetOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", c.Orders.DeleteOrder).Methods(http.MethodDelete)

	// Fulfillment routes
	f := admin.PathPrefix("/orders/{id}/fulfillment").Subrouter()
	f.HandleFunc("", c.Fulfillment.Start).Methods(http.MethodPost)
	f.HandleFunc("", c.Fulfillment.Get).Methods(http.MethodGet)
	f.HandleFunc("", c.Fulfillment.Discard).Methods(http.MethodDelete)
	f.HandleFunc("/slots", c.Fulfillment.AddLocation).Methods(http.MethodPost)
	f.HandleFunc("/slots/{key}", c.Fulfillment.UpdateSlot).Methods(http.MethodPatch)
	f.HandleFunc("/slots/{key}", c.Fulfillment.RemoveLocation).Methods(http.MethodDelete)
	f.HandleFunc("/proxies", c.Fulfillment.AddProxy).Methods(http.MethodPost)
	f.HandleFunc("/proxies/{index}", c.Fulfillment.RemoveProxy).Methods(http.MethodDelete)
	f.HandleFunc("/composer", c.Fulfillment.SetComposer).Methods(http.MethodPut)
	f.HandleFunc("/ports", c.Fulfillment.GetPorts).Methods(http.MethodGet)
	f.HandleFunc("/ports", c.Fulfillment.RegisterPort).Methods(http.MethodPost)
	f.HandleFunc("/ports/{port}", c.Fulfillment.UnregisterPort).Methods(http.MethodDelete)
	f.HandleFunc("/submit", c.Fulfillment.Submit).Methods(http.MethodPost)

	// Client routes
	admin.HandleFunc("/clients", c.Clients.GetClients).Methods(http.MethodGet)
	admin.HandleFunc("/clients/message", c.Clients.MessageClients).Methods(http.MethodPost)

	admin.HandleFunc("/dashboard", c.Dashboard.GetDashboard).Methods(http.MethodGet)
}
