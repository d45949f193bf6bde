// main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"proxy-admin/config"
	"proxy-admin/controllers"
	"proxy-admin/fulfillment"
	"proxy-admin/models"
	"proxy-admin/reseller"
	"proxy-admin/routes"
	"proxy-admin/store"
	"proxy-admin/utils"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found. Proceeding with environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	utils.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)

	emailService, err := utils.NewEmailService(cfg.Email)
	if err != nil {
		log.WithError(err).Fatal("Invalid email configuration")
	}

	// Connect to MongoDB
	client, err := utils.ConnectDB(cfg.Mongo.URI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Error("Failed to disconnect from MongoDB")
		}
	}()
	db := client.Database(cfg.Mongo.Database)

	orders := store.NewOrderStore(db.Collection("orders"))
	users := store.NewUserStore(db.Collection("users"))
	subUsers := store.NewSubUserStore(db.Collection("subUsers"))

	vendor := reseller.NewClient(cfg.Reseller.BaseURL,
		reseller.Credentials{Login: cfg.Reseller.Login, Password: cfg.Reseller.Password},
		reseller.WithTimeout(cfg.Reseller.Timeout),
		reseller.WithTokenTTL(cfg.Reseller.TokenTTL),
	)
	workflow := fulfillment.NewWorkflow(orders, fulfillment.NewDraftStoreTTL(cfg.Fulfillment.DraftTTL), cfg.Fulfillment.RequireAck)
	jwt := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// Set up the router
	router := mux.NewRouter()
	routes.RegisterRoutes(router, routes.Controllers{
		Auth:        controllers.NewAuthController(models.Admin{Email: cfg.Admin.Email, PasswordHash: cfg.Admin.PasswordHash}, jwt),
		Health:      controllers.NewHealthController(client, vendor.Session()),
		Reseller:    controllers.NewResellerController(vendor),
		SubUsers:    controllers.NewSubUserController(vendor, subUsers),
		Orders:      controllers.NewOrderController(orders),
		Fulfillment: controllers.NewFulfillmentController(workflow),
		Clients:     controllers.NewClientController(users, emailService),
		Dashboard:   controllers.NewDashboardController(orders),
	}, jwt)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
