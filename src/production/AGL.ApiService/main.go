package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/controllers"
	jwt "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/implementation/jwt"
	authMiddleware "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.ApiService/middleware"
	aglbridge "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Bridge"
	container "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Container"
	dispatch "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Dispatch"
	emqx "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Emqx"
	gateway "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Gateway"
	metrics "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Metrics"
	api_models "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models/api"
	presence "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Presence"
	provisioning "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Provisioning"
	implementation "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Implementation"
	scheduler "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Scheduler"
	threshold "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Threshold"
)

func main() {
	ctr, err := container.NewContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting farm server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctr.InitializeDatabase(ctx); err != nil {
		logger.FatalWithError(err, "Failed to initialize database")
	}

	db, err := ctr.GetDatabase()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database connection")
	}
	sampleColl, err := ctr.GetSensorDataCollection()
	if err != nil {
		logger.FatalWithError(err, "Failed to connect to sample store")
	}
	redisClient, err := ctr.GetRedisClient()
	if err != nil {
		logger.FatalWithError(err, "Failed to connect to presence store")
	}

	// Repositories
	userRepo := implementation.NewPostgresUserRepository(db)
	farmRepo := implementation.NewPostgresFarmRepository(db)
	deviceRepo := implementation.NewPostgresDeviceRepository(db)
	tokenRepo := implementation.NewPostgresPairingTokenRepository(db)
	sensorRepo := implementation.NewPostgresSensorConfigRepository(db)
	alertRepo := implementation.NewPostgresAlertLogRepository(db)
	commandRepo := implementation.NewPostgresCommandLogRepository(db)
	scheduleRepo := implementation.NewPostgresScheduleRepository(db)
	dataRepo := implementation.NewMongoSensorDataRepository(sampleColl)

	cfg := ctr.GetConfig()

	jwtService := jwt.NewService(api_models.Config{
		SecretKey:            cfg.Auth.JWTSecretKey,
		AccessTokenDuration:  cfg.Auth.AccessTokenDuration,
		RefreshTokenDuration: cfg.Auth.RefreshTokenDuration,
		Issuer:               cfg.Auth.JWTIssuer,
	})
	middlewareInstance := authMiddleware.NewAuthMiddleware(jwtService, userRepo)

	m := metrics.New()

	// Broker bridge and the services hanging off it. The gateway and the
	// dispatcher reference each other; the dispatcher link is attached
	// after both exist.
	bridge := aglbridge.New(cfg.MQTT, cfg.GetMQTTBrokerURL(), logger, m)
	hub := gateway.New(jwtService, userRepo, nil, logger, m)
	dispatcher := dispatch.New(bridge, hub, commandRepo, logger, m)
	hub.SetDispatcher(dispatcher)

	tracker := presence.NewTracker(redisClient, cfg.Redis.PresenceTTL)
	credSync := emqx.NewManagementClient(cfg.Emqx, logger)
	provisioningService := provisioning.New(deviceRepo, tokenRepo, bridge, hub, credSync, logger, cfg.Threshold.PairingTokenTTL)
	engine := threshold.NewEngine(cfg.Threshold, sensorRepo, dataRepo, alertRepo, dispatcher, hub, logger, m)
	emqxService := emqx.NewService(deviceRepo, farmRepo, jwtService, logger)
	schedulerService := scheduler.New(scheduleRepo, deviceRepo, dispatcher, logger)

	// Bridge fan-out
	bridge.Subscribe("provision/new", aglbridge.ListenerFunc(provisioningService.HandleProvisionMessage))
	bridge.Subscribe("device/+/telemetry", aglbridge.ListenerFunc(engine.HandleTelemetry))
	bridge.Subscribe("device/+/status", aglbridge.ListenerFunc(func(msg aglbridge.Message) {
		status, _ := msg.Payload["status"].(string)
		hub.BroadcastToDevice(msg.DeviceID, "deviceStatus", map[string]interface{}{
			"deviceId": msg.DeviceID,
			"status":   status,
		})
		if status == "offline" {
			if err := tracker.MarkOffline(context.Background(), msg.DeviceID); err != nil {
				logger.WithDevice(msg.DeviceID).ErrorWithError(err, "presence mark offline failed")
			}
			return
		}
		// A paired device reporting status comes online for the first time.
		if err := provisioningService.MarkActive(context.Background(), msg.DeviceID); err != nil {
			logger.WithDevice(msg.DeviceID).ErrorWithError(err, "activation failed")
		}
	}))
	// Command responses from devices go straight out to subscribed clients.
	respListener := aglbridge.ListenerFunc(func(msg aglbridge.Message) {
		hub.BroadcastToDevice(msg.DeviceID, "deviceData", map[string]interface{}{
			"deviceId": msg.DeviceID,
			"topic":    msg.Topic,
			"payload":  msg.Payload,
		})
	})
	bridge.Subscribe("device/+/resp", respListener)
	bridge.Subscribe("farm/+/device/+/resp", respListener)
	// Every device-scoped message refreshes the presence key.
	bridge.Subscribe(aglbridge.PatternAll, aglbridge.ListenerFunc(func(msg aglbridge.Message) {
		if msg.DeviceID == aglbridge.UnknownDevice {
			return
		}
		if err := tracker.Touch(context.Background(), msg.DeviceID); err != nil {
			logger.WithDevice(msg.DeviceID).ErrorWithError(err, "presence touch failed")
		}
	}))

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := bridge.Start(runCtx); err != nil {
		logger.FatalWithError(err, "Failed to connect to broker")
	}
	go schedulerService.Start(runCtx)

	healthChecker := ctr.NewHealthChecker(bridge)

	// HTTP surface
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	controllers.NewAuthController(userRepo, jwtService, cfg.Auth, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewFarmController(farmRepo, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewDeviceController(deviceRepo, farmRepo, dispatcher, tracker, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewProvisioningController(provisioningService, farmRepo, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewSensorController(sensorRepo, engine, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewDataController(dataRepo, alertRepo, commandRepo, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewScheduleController(schedulerService, scheduleRepo, logger, middlewareInstance).RegisterRoutes(router)
	controllers.NewEmqxController(emqxService, logger).RegisterRoutes(router)
	controllers.NewHealthController(healthChecker, m, logger).RegisterRoutes(router)

	router.GET("/ws", hub.HandleConnection)

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("Farm server running... press Ctrl+C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}

	stop()
	bridge.Stop()
}
