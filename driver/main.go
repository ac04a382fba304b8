package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"campus_delivery/goapi/handlers"
	"campus_delivery/goapi/middleware"
	"campus_delivery/goapi/middleware/logkafka"
	"campus_delivery/goapi/realtime"
	"campus_delivery/goapi/store"
	"campus_delivery/goapi/telem"
	"campus_delivery/goapi/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := utils.InitMongoClient(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "campusDeliveryDB"
	}

	orders := store.NewOrderStore(utils.GetCollection(client, dbName, "orders"))
	restaurants := store.NewRestaurantStore(utils.GetCollection(client, dbName, "restaurants"))
	users := store.NewUserStore(utils.GetCollection(client, dbName, "users"))

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	for _, ensure := range []func(context.Context) error{
		orders.EnsureIndexes, restaurants.EnsureIndexes, users.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to create indexes: %v", err)
		}
	}
	cancel()

	// Telemetry and metrics.
	handlers.Init()
	shutdownMetrics, err := telem.InitMetrics("campus-delivery-api")
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	shutdownTracing, err := telem.InitTracing("campus-delivery-api")
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}

	// Kafka request-log and order-event producers.
	brokers := strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ",")
	logkafka.InitWriters(brokers, envOr("KAFKA_LOG_TOPIC", "logs"), envOr("KAFKA_EVENT_TOPIC", "order-events"))
	defer logkafka.CloseWriters()

	pusherCtx, stopPusher := context.WithCancel(context.Background())
	defer stopPusher()
	if os.Getenv("ENABLE_EVENT_PUSHER") == "true" {
		go utils.RunOrderEventPusher(pusherCtx, brokers, envOr("KAFKA_EVENT_TOPIC", "order-events"), "order-events")
	}

	hub := realtime.NewHub()

	db := &handlers.DB{
		Orders:         orders,
		Restaurants:    restaurants,
		Users:          users,
		Hub:            hub,
		ServiceFeeRate: envFloat("SERVICE_FEE_RATE", 0.05),
		DeliveryFee:    envFloat("DELIVERY_FEE", 0),
	}
	auth := &middleware.Auth{Users: users}

	mainRouter := mux.NewRouter()
	mainRouter.Use(logkafka.LoggingMiddleware)

	mainRouter.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("API is running..."))
	}).Methods("GET")

	// Realtime subscriptions.
	mainRouter.HandleFunc("/ws", hub.ServeWS)

	// Public routes.
	public := mainRouter.PathPrefix("/api").Subrouter()
	public.HandleFunc("/users/register", db.RegisterHandler).Methods("POST")
	public.HandleFunc("/users/login", db.LoginHandler).Methods("POST")
	public.HandleFunc("/restaurants", db.ListRestaurantsHandler).Methods("GET")
	public.HandleFunc("/restaurants/{id}/public", db.PublicRestaurantHandler).Methods("GET")
	public.HandleFunc("/agents", db.ListAgentsHandler).Methods("GET")

	// Authenticated routes. Literal order paths are registered before the
	// {id} routes so they are not swallowed by the id matcher.
	api := mainRouter.PathPrefix("/api").Subrouter()
	api.Use(auth.Protect)

	api.HandleFunc("/orders", db.PlaceOrderHandler).Methods("POST")
	api.HandleFunc("/orders/myorders", db.MyOrdersHandler).Methods("GET")
	api.Handle("/orders/myrestaurant",
		middleware.RequireRestaurantAdmin(http.HandlerFunc(db.MyRestaurantOrdersHandler))).Methods("GET")
	api.Handle("/orders/available",
		middleware.RequireAgent(http.HandlerFunc(db.AvailableOrdersHandler))).Methods("GET")
	api.Handle("/orders/mydeliveries",
		middleware.RequireAgent(http.HandlerFunc(db.MyDeliveriesHandler))).Methods("GET")
	api.Handle("/orders/archive",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.ArchiveOrdersHandler))).Methods("POST")
	api.Handle("/orders",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.SearchOrdersHandler))).Methods("GET")
	api.HandleFunc("/orders/{id}", db.GetOrderHandler).Methods("GET")
	api.Handle("/orders/{id}/status",
		middleware.RequireRestaurantAdmin(http.HandlerFunc(db.UpdateOrderStatusHandler))).Methods("PUT")
	api.Handle("/orders/{id}/accept",
		middleware.RequireAgent(http.HandlerFunc(db.AcceptOrderHandler))).Methods("PUT")
	api.Handle("/orders/{id}/complete",
		middleware.RequireAgent(http.HandlerFunc(db.CompleteOrderHandler))).Methods("PUT")

	api.HandleFunc("/users/profile", db.ProfileHandler).Methods("GET")
	api.HandleFunc("/users/profile", db.UpdateProfileHandler).Methods("PUT")
	api.HandleFunc("/users/profile/change-password", db.ChangePasswordHandler).Methods("PUT")

	api.Handle("/restaurants",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.CreateRestaurantHandler))).Methods("POST")
	api.Handle("/restaurants/myrestaurant",
		middleware.RequireRestaurantAdmin(http.HandlerFunc(db.MyRestaurantHandler))).Methods("GET")
	api.Handle("/restaurants/myrestaurant/menu",
		middleware.RequireRestaurantAdmin(http.HandlerFunc(db.AddMenuItemHandler))).Methods("POST")
	api.Handle("/restaurants/myrestaurant/menu/{itemId}",
		middleware.RequireRestaurantAdmin(http.HandlerFunc(db.UpdateMenuItemHandler))).Methods("PUT")
	api.Handle("/restaurants/myrestaurant/menu/{itemId}",
		middleware.RequireRestaurantAdmin(http.HandlerFunc(db.DeleteMenuItemHandler))).Methods("DELETE")
	api.HandleFunc("/restaurants/{id}/reviews", db.CreateReviewHandler).Methods("POST")
	api.Handle("/restaurants/{id}",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.DeleteRestaurantHandler))).Methods("DELETE")

	api.Handle("/agents",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.CreateAgentHandler))).Methods("POST")
	api.Handle("/agents/{id}",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.DeleteAgentHandler))).Methods("DELETE")

	api.Handle("/dashboard/stats",
		middleware.RequireSuperAdmin(http.HandlerFunc(db.DashboardStatsHandler))).Methods("GET")

	api.HandleFunc("/payment/pay", db.ProcessPaymentHandler).Methods("POST")

	srv := &http.Server{
		Handler:      mainRouter,
		Addr:         envOr("LISTEN_ADDR", ":8000"),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	go func() {
		log.Printf("Server running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.Printf("Metrics shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
