package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-location-sync/internal/cache"
	"github.com/kjstillabower/weather-location-sync/internal/circuitbreaker"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/config"
	"github.com/kjstillabower/weather-location-sync/internal/geocode"
	"github.com/kjstillabower/weather-location-sync/internal/gps"
	httphandler "github.com/kjstillabower/weather-location-sync/internal/http"
	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/lifecycle"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
	"github.com/kjstillabower/weather-location-sync/internal/preferences"
	"github.com/kjstillabower/weather-location-sync/internal/refresh"
	"github.com/kjstillabower/weather-location-sync/internal/search"
	"github.com/kjstillabower/weather-location-sync/internal/service"
)

const bootstrapTimeout = 30 * time.Second

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	kv, storagePing, closer := openStore(cfg, logger)

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.BreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("weather_api", float64(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", "weather_api"),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		observability.SetCircuitBreakerStateGauge("weather_api", 0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	weatherClient, err := client.New(client.Config{
		BaseURL: cfg.WeatherAPIURL,
		Lang:    cfg.WeatherAPILang,
		Timeout: cfg.WeatherAPITimeout,
		Breaker: breaker,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var geocoder geocode.Gateway
	if cfg.GeoapifyAPIKey != "" {
		gc, err := geocode.New(geocode.Config{
			BaseURL: cfg.GeoapifyURL,
			APIKey:  cfg.GeoapifyAPIKey,
			Lang:    cfg.WeatherAPILang,
			Limit:   cfg.GeoapifyLimit,
			Timeout: cfg.GeoapifyTimeout,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal("geocoding client", zap.Error(err))
		}
		geocoder = gc
	} else {
		logger.Warn("no geocoding API key; place search and name lookups are disabled")
	}

	var position gps.Provider = gps.Denied()
	if cfg.GPS != nil {
		position = gps.Fixed(cfg.GPS.Lat, cfg.GPS.Lon)
		logger.Info("device position configured", zap.Float64("lat", cfg.GPS.Lat), zap.Float64("lon", cfg.GPS.Lon))
	}

	locations := location.NewStore(kv, logger)
	prefs := preferences.NewStore(kv, logger)
	weatherCache := cache.New(cfg.CacheTTL, cache.WithStore(kv), cache.WithLogger(logger))

	weatherSync := service.NewWeatherSync(service.Deps{
		Weather:   weatherClient,
		Geocoder:  geocoder,
		GPS:       position,
		Locations: locations,
		Cache:     weatherCache,
		Logger:    logger,
	}, service.Options{
		ForecastDays: cfg.ForecastDays,
		DefaultLocation: models.Location{
			PlaceID:     cfg.DefaultLocation.PlaceID,
			DisplayName: cfg.DefaultLocation.Name,
			Lat:         cfg.DefaultLocation.Lat,
			Lon:         cfg.DefaultLocation.Lon,
		},
	})

	var searchSvc *search.Service
	if geocoder != nil {
		searchSvc = search.NewService(geocoder, cfg.SearchDebounce, logger)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.DegradedWindow)

	handler := httphandler.NewHandler(httphandler.Deps{
		Sync:      weatherSync,
		Locations: locations,
		Alerts:    service.NewAlertService(weatherClient, locations, prefs, logger),
		Chat:      service.NewChatService(weatherClient, locations, logger),
		Search:    searchSvc,
		Prefs:     prefs,
		Logger:    logger,
	})
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Health: httphandler.HealthConfig{
			DegradedWindow:   cfg.DegradedWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
			Breaker:          breaker,
			StoragePing:      storagePing,
			StartTime:        time.Now(),
		},
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootCtx, bootCancel := context.WithTimeout(ctx, bootstrapTimeout)
	loc, fr, err := weatherSync.Bootstrap(bootCtx)
	bootCancel()
	if err != nil {
		logger.Warn("bootstrap incomplete", zap.String("location", loc.DisplayName), zap.Error(err))
	} else {
		logger.Info("bootstrap complete", zap.String("location", loc.DisplayName), zap.Bool("cached", fr.Cached))
	}
	lifecycle.MarkReady()

	var poller *refresh.Poller
	if cfg.RefreshEnabled {
		poller = refresh.NewPoller(weatherSync, cfg.RefreshInterval, cfg.RequestTimeout, logger)
		if err := poller.Start(ctx); err != nil {
			logger.Error("refresh poller", zap.Error(err))
			poller = nil
		}
	}

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetDraining(true)
	if poller != nil {
		poller.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if closer != nil {
		if err := closer.Close(); err != nil {
			logger.Error("storage close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// openStore builds the configured key-value backend. Networked backends also
// return a ping for the health check and a closer for shutdown.
func openStore(cfg *config.Config, logger *zap.Logger) (kvstore.Store, func(context.Context) error, io.Closer) {
	switch cfg.StorageBackend {
	case config.BackendMemcached:
		mc := kvstore.NewMemcachedStore(cfg.MemcachedAddrs, cfg.StoragePrefix, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		logger.Info("storage backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc.Ping, mc
	case config.BackendRedis:
		rs := kvstore.NewRedisStore(kvstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.StoragePrefix,
		})
		logger.Info("storage backend: redis", zap.String("addr", cfg.RedisAddr))
		return rs, rs.Ping, rs
	default:
		logger.Info("storage backend: in_memory")
		return kvstore.NewInMemoryStore(), nil, nil
	}
}
