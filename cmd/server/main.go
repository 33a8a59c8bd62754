package main // Entry point package

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/cleanup"
	"github.com/miras/smartclub/internal/config"
	"github.com/miras/smartclub/internal/database"
	"github.com/miras/smartclub/internal/handler"
	"github.com/miras/smartclub/internal/middleware"
	"github.com/miras/smartclub/internal/queue"
	"github.com/miras/smartclub/internal/repository"
	"github.com/miras/smartclub/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	clubRepo := repository.NewClubRepo(db)
	seatRepo := repository.NewSeatRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	userRepo := repository.NewUserRepo(db)

	svc := booking.NewService(clubRepo, seatRepo, reservationRepo)

	// Redis is optional: when unavailable the cache and rate limiter
	// degrade to pass-through middleware.
	rdb := config.NewRedisClient()
	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	limitMW := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	authH := handler.NewAuthHandler(cfg, userRepo)
	clubH := handler.NewClubHandler(clubRepo, seatRepo, svc)
	bookingH := handler.NewBookingHandler(svc, clubRepo, seatRepo)
	paymentH := handler.NewPaymentHandler(svc, bookingH)

	// background workers: event audit consumer and expiry sweeper
	go func() {
		if err := queue.StartReservationConsumer(); err != nil {
			log.Printf("reservation consumer stopped: %v", err)
		}
	}()
	go cleanup.StartExpirySweeper(svc, time.Duration(cfg.SweepEverySec)*time.Second)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Handlers{
		Auth:      authH,
		Clubs:     clubH,
		Booking:   bookingH,
		Payments:  paymentH,
		JWTSecret: cfg.JWTSecret,
		Cache:     cacheMW,
		RateLimit: limitMW,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
