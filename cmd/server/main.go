package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/obkin/biz-crm-server-sub000/internal/config"
	"github.com/obkin/biz-crm-server-sub000/internal/events"
	"github.com/obkin/biz-crm-server-sub000/internal/handlers"
	"github.com/obkin/biz-crm-server-sub000/internal/logging"
	"github.com/obkin/biz-crm-server-sub000/internal/middleware"
	"github.com/obkin/biz-crm-server-sub000/internal/repository"
	"github.com/obkin/biz-crm-server-sub000/internal/service"
	"github.com/obkin/biz-crm-server-sub000/internal/sweeper"
	"github.com/obkin/biz-crm-server-sub000/internal/tokens"
	httpserver "github.com/obkin/biz-crm-server-sub000/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	config.MustNonEmpty(configuration.JWT_SECRET, "JWT_SECRET")

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	publisher := events.NewKafkaPublisher([]string{configuration.KAFKA_ADDRESS})

	userRepo := &repository.UserRepo{DB: db}
	credentialRepo := &repository.CredentialRepo{DB: db}
	blockRepo := &repository.BlockRepo{DB: db}

	codec := tokens.NewCodec(
		[]byte(configuration.JWT_SECRET),
		configuration.ACCESS_TOKEN_TTL,
		configuration.REFRESH_TOKEN_TTL,
	)
	sessions := service.NewSessionService(db, userRepo, credentialRepo, codec, publisher)

	sw := sweeper.New(blockRepo, userRepo, logger)
	schedule, err := sweeper.Start(sw, configuration.BLOCK_SWEEP_INTERVAL)
	if err != nil {
		log.Fatalf("sweeper start error: %v", err)
	}

	e := echo.New()
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover(), echomw.RequestID())

	deps := httpserver.Deps{
		AuthHandler:  &handlers.AuthHandler{Sessions: sessions, Users: userRepo, Publisher: publisher},
		UserHandler:  &handlers.UserHandler{},
		BlockHandler: &handlers.BlockHandler{Users: userRepo, Blocks: blockRepo},
		AuthGuard:    &middleware.AuthGuard{Codec: codec, Sessions: sessions},
		BlockGuard:   &middleware.BlockGuard{Users: userRepo, Blocks: blockRepo},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", configuration.SERVER_PORT),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	schedule.Stop()

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := publisher.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
