package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mbarroso/giftregistry/internal/cartapi"
	"github.com/mbarroso/giftregistry/internal/cartcache"
	"github.com/mbarroso/giftregistry/internal/cartsync"
	"github.com/mbarroso/giftregistry/internal/checkout"
	"github.com/mbarroso/giftregistry/internal/config"
	"github.com/mbarroso/giftregistry/internal/giftapi"
	"github.com/mbarroso/giftregistry/internal/httpserver"
	"github.com/mbarroso/giftregistry/internal/identity"
	"github.com/mbarroso/giftregistry/internal/logging"
	"github.com/mbarroso/giftregistry/internal/notify"
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	var slot cartcache.Slot
	switch cfg.CacheBackend {
	case "redis":
		slot = cartcache.NewRedisSlot(cfg.RedisAddr, cfg.RedisDB)
	default:
		s, err := cartcache.OpenSQLite(cfg.CachePath)
		if err != nil {
			log.Fatalf("cart cache open: %v", err)
		}
		slot = s
	}
	cache := cartcache.New(slot, logger)

	var sink notify.Sink
	var kafkaSink *notify.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = notify.NewKafkaSink(cfg.KafkaBrokers, cfg.NotifyTopic, logger)
		sink = kafkaSink
	} else {
		sink = &notify.LogSink{Log: logger}
	}

	cartClient := cartapi.NewClient(cfg.RegistryAPIURL)
	giftClient := giftapi.NewClient(cfg.RegistryAPIURL)
	provider := identity.NewProvider(cfg.JWTSecret)

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	syncer := cartsync.New(startCtx, cartClient, giftClient, cache, sink, logger)
	startCancel()

	checker := cartsync.NewChecker(syncer, cartClient, logger)

	checkoutSvc := &checkout.Service{
		Sync:    syncer,
		Checker: checker,
		Catalog: giftClient,
		Sink:    sink,
		PixKey:  cfg.PixKey,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	identities, cancelWatch := provider.Watch()
	defer cancelWatch()
	go syncer.Run(runCtx, identities)
	go checker.Run(runCtx)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(logging.RequestLogger(logger))
	e.Use(echomw.CORS())

	httpserver.Register(e, &httpserver.Deps{
		CartHandler: &httpserver.CartHTTP{
			Sync:     syncer,
			Checker:  checker,
			Checkout: checkoutSvc,
			Catalog:  giftClient,
			Identity: provider,
		},
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s", cfg.ServiceName, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	runCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
