// cmd/inventory-service/main.go
package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"vinheria/internal/pkg/auth"
	"vinheria/internal/pkg/bootstrap"
	"vinheria/internal/pkg/logger"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/service/inventory/application"
	"vinheria/internal/service/inventory/domain"
	"vinheria/internal/service/inventory/infrastructure"
	"vinheria/internal/service/inventory/interfaces"
)

const serviceName = "inventory-service"

func defaults() bootstrap.Config {
	return bootstrap.Config{
		Service:   bootstrap.ServiceConfig{Name: serviceName, Version: "1.0.0", Port: 3001},
		Auth:      bootstrap.AuthConfig{TokenTTL: auth.DefaultTTL},
		Events:    bootstrap.EventsConfig{Kafka: bootstrap.KafkaConfig{Topic: "vinheria-events"}},
		Inventory: bootstrap.InventoryConfig{Backend: "memory", Redis: bootstrap.RedisConfig{Addr: "localhost:6379", Key: infrastructure.DefaultRedisKey}},
	}
}

// main 函数是库存服务的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后交给 bootstrap 启动。
func main() {
	// 1. 加载配置并初始化日志
	cfg, err := bootstrap.LoadConfig(bootstrap.ConfigPath(), defaults())
	if err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Service.Name, cfg.Log)
	log := logger.Ctx(context.Background())

	// 2. 鉴权：缺少 JWT 密钥时不允许启动
	verifier, err := auth.NewVerifier(cfg.Auth.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token verifier")
	}

	// 3. 选择库存后端，并用商品目录重新初始化库存
	var shutdown []func(ctx context.Context) error
	repo, closeRepo := newRepository(cfg)
	if closeRepo != nil {
		shutdown = append(shutdown, closeRepo)
	}

	catalog := cfg.Inventory.Catalog
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog()
	}
	seedCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = repo.Seed(seedCtx, catalog)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Inventory.Backend).Msg("failed to seed stock")
	}
	log.Info().Int("products", len(catalog)).Int("units", domain.Total(catalog)).Str("backend", cfg.Inventory.Backend).Msg("stock seeded")

	// 4. 事件、指标和业务 Service
	emitter := bootstrap.NewEmitter(cfg)
	shutdown = append(shutdown, func(context.Context) error { return emitter.Close() })

	m := metrics.New(cfg.Service.Name)
	svc := application.NewInventoryService(cfg.Service.Name, repo, otel.Tracer(cfg.Service.Name), m, emitter)

	// 5. 注册路由并启动，收到退出信号后依次执行 shutdown 钩子
	bootstrap.StartService(bootstrap.AppInfo{
		Config:   cfg,
		Metrics:  m,
		Verifier: verifier,
		RegisterHandlers: func(app bootstrap.AppCtx) {
			interfaces.NewInventoryHandler(svc, cfg.Service.Name, cfg.Service.Version).RegisterRoutes(app.Router, app.Secured)
		},
		OnShutdown: shutdown,
	})
}

// newRepository 根据配置选择库存后端。redis 后端必须在启动前 ping 通。
func newRepository(cfg *bootstrap.Config) (domain.StockRepository, func(context.Context) error) {
	if cfg.Inventory.Backend != "redis" {
		return infrastructure.NewMemoryRepository(), nil
	}

	rc := cfg.Inventory.Redis
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{rc.Addr},
		Password: rc.Password,
		DB:       rc.DB,
	})
	repo := infrastructure.NewRedisRepository(client, rc.Key)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.Ping(ctx); err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Str("addr", rc.Addr).Msg("redis unreachable")
	}
	return repo, func(context.Context) error { return repo.Close() }
}
