package router

import (
	"log"
	"os"
	"time"

	"github.com/afrilegal/juris-api/config"
	"github.com/afrilegal/juris-api/database"
	"github.com/afrilegal/juris-api/handlers"
	admin_handlers "github.com/afrilegal/juris-api/handlers/admin"
	auth_handlers "github.com/afrilegal/juris-api/handlers/auth"
	catalog_handlers "github.com/afrilegal/juris-api/handlers/catalog"
	payment_handlers "github.com/afrilegal/juris-api/handlers/payment"
	request_handlers "github.com/afrilegal/juris-api/handlers/request"
	subscription_handlers "github.com/afrilegal/juris-api/handlers/subscription"
	training_handlers "github.com/afrilegal/juris-api/handlers/training"
	"github.com/afrilegal/juris-api/services"
	"github.com/afrilegal/juris-api/services/gateway"
	"github.com/afrilegal/juris-api/services/storage"
	"github.com/afrilegal/juris-api/utils"
	"github.com/afrilegal/juris-api/utils/auth"
	"github.com/afrilegal/juris-api/utils/cache"
	"github.com/afrilegal/juris-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Dependencies carries everything the routes need beyond the database
type Dependencies struct {
	Env        *config.EnviornmentVariable
	Payments   *services.PaymentService
	Revenue    *services.RevenueService
	References *services.ReferenceService
	Storage    *storage.SpacesClient
	Cache      *cache.RedisCache
}

// BuildDependencies wires the service graph from configuration. Redis and
// object storage are optional: the services degrade without them.
func BuildDependencies(db *gorm.DB, env *config.EnviornmentVariable) *Dependencies {
	var redisCache *cache.RedisCache
	if env.REDIS_URL != "" {
		var err error
		redisCache, err = cache.NewRedisCache(env.REDIS_URL)
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v. Caching disabled.", err)
			redisCache = nil
		}
	}

	var storageClient *storage.SpacesClient
	if env.STORAGE_ACCESS_KEY != "" && env.STORAGE_BUCKET != "" {
		var err error
		storageClient, err = storage.NewSpacesClient(storage.SpacesConfig{
			AccessKey: env.STORAGE_ACCESS_KEY,
			SecretKey: env.STORAGE_SECRET_KEY,
			Bucket:    env.STORAGE_BUCKET,
			Region:    env.STORAGE_REGION,
			Endpoint:  env.STORAGE_ENDPOINT,
		})
		if err != nil {
			log.Printf("Warning: Failed to create storage client: %v. Receipts and downloads disabled.", err)
			storageClient = nil
		}
	}

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:    env.GATEWAY_BASE_URL,
		MerchantID: env.GATEWAY_MERCHANT_ID,
		APIKey:     env.GATEWAY_API_KEY,
		ReturnURL:  env.GATEWAY_RETURN_URL,
	})

	return &Dependencies{
		Env:        env,
		Payments:   services.NewPaymentService(db, gatewayClient, storageClient, redisCache),
		Revenue:    services.NewRevenueService(db, redisCache),
		References: services.NewReferenceService(db),
		Storage:    storageClient,
		Cache:      redisCache,
	}
}

// SetupRoutes mounts every route group on the app
func SetupRoutes(app *fiber.App, store database.Storage, deps *Dependencies) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "juris-api"
	}

	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,
		RefreshExpiry: 7 * 24 * time.Hour,
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	authHandler := auth_handlers.NewAuthHandler(db, jwtManager)
	paymentHandler := payment_handlers.NewPaymentHandler(db, deps.Payments)
	requestHandler := request_handlers.NewRequestHandler(db, deps.References)
	trainingHandler := training_handlers.NewTrainingHandler(db, deps.References, deps.Payments)
	subscriptionHandler := subscription_handlers.NewSubscriptionHandler(db, deps.References, deps.Payments)
	catalogHandler := catalog_handlers.NewCatalogHandler(db, deps.References, deps.Payments, deps.Storage)
	adminHandler := admin_handlers.NewAdminHandler(db, deps.Payments, deps.Revenue)

	// Health check
	app.Get("/health", utils.MakeHTTPHandleFunc(handlers.HandleCheckHealth, store))

	v1 := app.Group("/api/v1")

	// Authentication
	authGroup := v1.Group("/auth")
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Get("/profile", authMiddleware.Required(), authHandler.Profile)

	// Payments: initiation is open to guests, the return endpoint is called
	// by the gateway with no auth at all
	v1.Post("/pay/:payableType/:payableId", authMiddleware.Optional(), paymentHandler.Initiate)
	v1.Get("/pay/return", paymentHandler.Return)
	v1.Get("/payments/:reference", paymentHandler.Status)
	v1.Get("/payments/:reference/invoice", authMiddleware.Optional(), paymentHandler.Invoice)

	// Document requests
	requestGroup := v1.Group("/requests")
	requestGroup.Post("/", authMiddleware.Optional(), requestHandler.Create)
	requestGroup.Get("/:ref", authMiddleware.Optional(), requestHandler.Get)

	// Trainings
	trainingGroup := v1.Group("/trainings")
	trainingGroup.Get("/", trainingHandler.List)
	trainingGroup.Get("/:id", trainingHandler.Get)
	trainingGroup.Post("/:id/enroll", authMiddleware.Required(), trainingHandler.Enroll)

	// Subscription plans
	planGroup := v1.Group("/plans")
	planGroup.Get("/", subscriptionHandler.ListPlans)
	planGroup.Get("/:id", subscriptionHandler.GetPlan)
	v1.Post("/subscriptions", authMiddleware.Required(), subscriptionHandler.Subscribe)

	// Boutique
	catalogGroup := v1.Group("/catalog")
	catalogGroup.Get("/", catalogHandler.ListItems)
	catalogGroup.Get("/:id", catalogHandler.GetItem)
	catalogGroup.Post("/:id/checkout", authMiddleware.Optional(), catalogHandler.Checkout)
	v1.Get("/purchases/:ref/download", authMiddleware.Optional(), catalogHandler.Download)

	// Customer account surfaces
	meGroup := v1.Group("/me", authMiddleware.Required())
	meGroup.Get("/payments", paymentHandler.MyPayments)
	meGroup.Get("/requests", requestHandler.MyRequests)
	meGroup.Get("/registrations", trainingHandler.MyRegistrations)
	meGroup.Get("/subscriptions", subscriptionHandler.MySubscriptions)
	meGroup.Get("/purchases", catalogHandler.MyPurchases)

	// Back office
	adminGroup := v1.Group("/admin", authMiddleware.RequireAdmin())
	adminGroup.Get("/stats/dashboard", adminHandler.Dashboard)
	adminGroup.Get("/stats/catalog/:id", adminHandler.CatalogItemStats)
	adminGroup.Get("/stats/plans", adminHandler.PlanStats)
	adminGroup.Get("/stats/users/:id", adminHandler.UserEngagement)
	adminGroup.Get("/payments", adminHandler.ListPayments)
	adminGroup.Get("/purchases", adminHandler.ListPurchases)
	adminGroup.Get("/subscriptions", adminHandler.ListSubscriptions)
	adminGroup.Get("/payments/unfulfilled", adminHandler.UnfulfilledPayments)
	adminGroup.Post("/payments/:id/mark-succeeded", adminHandler.MarkPaymentSucceeded)
	adminGroup.Post("/payments/expire-stale", adminHandler.ExpireStalePayments)
	adminGroup.Get("/requests", requestHandler.List)
	adminGroup.Patch("/requests/:id/status", requestHandler.UpdateStatus)
	adminGroup.Post("/trainings", trainingHandler.Create)
	adminGroup.Post("/plans", subscriptionHandler.CreatePlan)
	adminGroup.Post("/subscriptions/expire-lapsed", subscriptionHandler.ExpireLapsed)
	adminGroup.Post("/catalog", catalogHandler.CreateItem)
}
