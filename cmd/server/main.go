package main

import (
    "log"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/saas-provisioning/internal/config"
    "github.com/iliyamo/saas-provisioning/internal/database"
    "github.com/iliyamo/saas-provisioning/internal/handler"
    "github.com/iliyamo/saas-provisioning/internal/middleware"
    "github.com/iliyamo/saas-provisioning/internal/queue"
    "github.com/iliyamo/saas-provisioning/internal/repository"
    "github.com/iliyamo/saas-provisioning/internal/router"
)

func main() {
    // Load .env if present; real deployments set variables directly.
    _ = godotenv.Load()

    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database connect failed: %v", err)
    }
    defer db.Close()

    // Repositories.
    customers := repository.NewCustomerRepo(db)
    queueRepo := repository.NewQueueRepo(db, repository.EstimateOffsets{
        NormalHours: cfg.EstimateNormalHours,
        HighHours:   cfg.EstimateHighHours,
        UrgentHours: cfg.EstimateUrgentHours,
    })
    admins := repository.NewAdminRepo(db)
    tokens := repository.NewTokenRepo(db)
    backends := repository.NewBackendRepo(db)

    // Handlers.
    provisioning := handler.NewProvisioningHandler(customers, queueRepo, cfg)
    customerH := handler.NewCustomerHandler(customers)
    adminQueue := handler.NewAdminQueueHandler(queueRepo, admins, backends, customers)
    auth := handler.NewAuthHandler(cfg, admins, tokens)

    e := echo.New()

    // Redis-backed rate limiting and response caching.  When Redis is
    // unreachable the client is nil and both middlewares are skipped;
    // the service serves uncached, unthrottled traffic instead of
    // refusing to start.
    var cacheMW echo.MiddlewareFunc
    if rdb := config.NewRedisClient(); rdb != nil {
        rlCfg := config.LoadRateLimitConfig()
        if rlCfg.Enabled {
            e.Use(middleware.NewTokenBucket(rlCfg, rdb))
        }
        cacheCfg := config.LoadCacheConfig()
        if cacheCfg.Enabled {
            cacheMW = middleware.NewRedisCache(cacheCfg, rdb)
        }
    } else {
        log.Println("redis unavailable; rate limiting and caching disabled")
    }

    router.RegisterRoutes(e)
    router.RegisterProvisioning(e, provisioning, customerH, cacheMW)
    router.RegisterAuth(e, auth, cfg.JWTSecret)
    router.RegisterAdmin(e, adminQueue, cfg.JWTSecret)

    // Background consumer that records lifecycle events to the audit log.
    go func() {
        if err := queue.StartProvisioningConsumer(); err != nil {
            log.Printf("provisioning consumer stopped: %v", err)
        }
    }()

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
