// cmd/sales-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"vinheria/internal/pkg/auth"
	"vinheria/internal/pkg/bootstrap"
	"vinheria/internal/pkg/httpclient"
	"vinheria/internal/pkg/logger"
	"vinheria/internal/pkg/metrics"
	"vinheria/internal/service/order/application"
	"vinheria/internal/service/order/infrastructure/adapter"
	"vinheria/internal/service/order/interfaces"
)

const serviceName = "sales-service"

func defaults() bootstrap.Config {
	return bootstrap.Config{
		Service: bootstrap.ServiceConfig{Name: serviceName, Version: "1.0.0", Port: 3000},
		Auth:    bootstrap.AuthConfig{TokenTTL: auth.DefaultTTL},
		Events:  bootstrap.EventsConfig{Kafka: bootstrap.KafkaConfig{Topic: "vinheria-events"}},
		Sales: bootstrap.SalesConfig{
			InventoryURL:   "http://localhost:3001",
			RequestTimeout: httpclient.DefaultTimeout,
		},
	}
}

// main 函数是销售服务（订单编排）的组装根。
func main() {
	// 1. 加载配置并初始化日志
	cfg, err := bootstrap.LoadConfig(bootstrap.ConfigPath(), defaults())
	if err != nil {
		logger.Ctx(context.Background()).Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.Service.Name, cfg.Log)
	log := logger.Ctx(context.Background())

	// 2. 鉴权：/order 的校验器和 /auth 的签发器使用同一个密钥
	verifier, err := auth.NewVerifier(cfg.Auth.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token verifier")
	}
	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token issuer")
	}

	// 3. 初始化核心技术组件
	tracer := otel.Tracer(cfg.Service.Name)
	m := metrics.New(cfg.Service.Name)
	emitter := bootstrap.NewEmitter(cfg)

	// 4. 出站适配器 -> 应用服务。每次调用库存服务都受 request_timeout 约束
	client := httpclient.NewClient(tracer, cfg.Sales.RequestTimeout, cfg.Sales.InsecureSkipVerify)
	inventory := adapter.NewInventoryHTTPAdapter(client, cfg.Sales.InventoryURL, m)
	svc := application.NewOrderApplicationService(cfg.Service.Name, tracer, inventory, m, emitter)

	log.Info().Str("inventory_url", cfg.Sales.InventoryURL).Dur("request_timeout", client.Timeout).Msg("inventory authority configured")

	// 5. 注册路由并启动
	bootstrap.StartService(bootstrap.AppInfo{
		Config:   cfg,
		Metrics:  m,
		Verifier: verifier,
		RegisterHandlers: func(app bootstrap.AppCtx) {
			interfaces.NewOrderHandler(svc, issuer, cfg.Service.Name, cfg.Service.Version).RegisterRoutes(app.Router, app.Secured)
		},
		OnShutdown: []func(ctx context.Context) error{
			func(context.Context) error { return emitter.Close() },
		},
	})
}
