package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"secretsanta/internal/config"
	"secretsanta/internal/handlers"
	"secretsanta/internal/services"
	"secretsanta/internal/storage"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	defer logger.Init("secretsanta", cfg.LogVerbose, false, io.Discard).Close()

	// 2. Open the durable store
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	kv, err := storage.Open(ctx, storage.Options{
		Driver:         cfg.Store.Driver,
		SQLitePath:     cfg.Store.SQLitePath,
		RedisAddr:      cfg.Store.RedisAddr,
		RedisPassword:  cfg.Store.RedisPassword,
		RedisDB:        cfg.Store.RedisDB,
		RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
	})
	cancel()
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer kv.Close()

	// 3. Initialize the Exchange Service
	exchangeService := services.NewExchangeService(kv)

	// 4. Initialize the HTTP Handler
	httpHandler := handlers.NewHTTPHandler(exchangeService)

	// 5. Set up the Gin router
	r := gin.Default()
	httpHandler.RegisterPublicRoutes(r)
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/groups/"+cfg.DefaultGroup+"/status")
	})

	// 6. Group routes that resolve the exchange group and apply middleware
	groupRoutes := r.Group("/groups/:group")
	groupRoutes.Use(httpHandler.GroupMiddleware())
	httpHandler.RegisterGroupRoutes(groupRoutes)

	// 7. Start the background janitor to evict idle groups from memory
	go func() {
		for {
			time.Sleep(cfg.CleanupInterval)
			n := exchangeService.CleanUpInactiveGroups(cfg.GroupIdleTimeout)
			logger.Infof("Performed cleanup of inactive groups, evicted %d.", n)
		}
	}()

	// 8. Run the server
	logger.Infof("Server starting on http://localhost:%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatalf("Failed to run server: %v", err)
	}
}
