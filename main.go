package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/orderease/backend/database"
	"github.com/orderease/backend/internal/handlers"
	"github.com/orderease/backend/internal/jobs"
	"github.com/orderease/backend/internal/models"
	"github.com/orderease/backend/internal/routes"
	"github.com/orderease/backend/internal/services"
	"github.com/orderease/backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found - using environment variables")
	}

	// Initialize storage
	var store storage.Store
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Dish{},
			&models.Order{},
			&models.WhatsAppOrder{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		log.Println("✅ Using PostgreSQL database storage")
	}

	// Outbound WhatsApp messaging; without Twilio credentials replies are
	// logged instead of sent, which keeps local development usable
	var messenger services.Messenger
	twilioService, err := services.NewTwilioService()
	if err != nil {
		log.Printf("⚠️  Twilio not configured (%v) - replies will be logged only", err)
		messenger = services.NewLogMessenger()
	} else {
		log.Println("✅ Twilio service initialized")
		messenger = twilioService
	}

	// Payment links; same degradation story as Twilio
	var payments services.PaymentLinkIssuer
	razorpayService, err := services.NewRazorpayService()
	if err != nil {
		log.Printf("⚠️  Razorpay not configured (%v) - payment links unavailable", err)
		payments = services.NewUnavailablePaymentIssuer()
	} else {
		log.Println("✅ Razorpay service initialized")
		payments = razorpayService
	}

	// Conversation sessions: Redis when REDIS_ADDR is set, memory otherwise
	sessionManager := services.NewSessionManager(services.NewSessionStore())

	// Order parsing: Gemini when a key is configured, with the keyword
	// fallback always behind it
	pipeline := services.NewOrderParsingPipeline(services.NewGeminiParser())

	bot := services.NewOrderBot(store, sessionManager, pipeline, messenger, payments)
	reconciler := services.NewReconciliationService(store, sessionManager, messenger)

	// Payment reminder sweeps
	reminderJob := jobs.NewReminderJob(store, messenger)
	reminderJob.Start()

	log.Println("✅ All services initialized")

	app := fiber.New(fiber.Config{
		AppName: "OrderEase Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Dishes:    handlers.NewDishHandler(store),
		Orders:    handlers.NewOrderHandler(store),
		WhatsApp:  handlers.NewWhatsAppHandler(bot),
		Payments:  handlers.NewPaymentHandler(store, reconciler),
		Broadcast: handlers.NewBroadcastHandler(messenger),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		log.Println("🛑 Shutting down server...")
		reminderJob.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("🚀 OrderEase backend starting on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Server error:", err)
	}
}
