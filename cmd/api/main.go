package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/event"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/metrics"
	"storefront/internal/payment"
	"storefront/internal/server"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/golang-jwt/jwt/v4"
	"github.com/joho/godotenv"
)

// アクセストークンの有効期限
const accessTokenTTL = 15 * time.Minute

type jwtIssuer struct {
	secret    []byte
	accessTTL time.Duration
}

func (i *jwtIssuer) Issue(userID int64, name string, role model.Role, tokenVersion int, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.accessTTL)

	claims := jwt.MapClaims{
		"sub":  userID,
		"name": name,
		"role": string(role),
		"tv":   tokenVersion,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .envは無くてもよい（本番は環境変数直渡し）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Product{},
		&model.Review{},
		&model.Order{},
		&model.OrderItem{},
		&model.AuditLog{},
	); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	reviewRepo := infraRepo.NewReviewGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//Stripe（circuit breaker付き）
	gateway := payment.NewBreakerGateway(payment.NewStripeGateway(cfg.StripeSecretKey))

	//webhook重複排除。Redisが無ければ素通し（CAS更新が最終防衛線）
	var dedup cache.WebhookDedup
	if cfg.RedisAddr != "" {
		dedup = cache.NewRedisWebhookDedup(cfg.RedisAddr, 24*time.Hour)
	} else {
		dedup = cache.NewNoopWebhookDedup()
	}

	//注文イベント配信
	var events event.Publisher
	if cfg.KafkaBrokers != "" {
		kp := event.NewKafkaPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		events = kp
	} else {
		events = event.NoopPublisher{}
	}

	m := metrics.NewServerMetrics()

	//JWT issuer
	issuer := &jwtIssuer{secret: []byte(cfg.JWTSecret), accessTTL: accessTokenTTL}

	rules := usecase.PricingRules{
		TaxRate:               cfg.TaxRate,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FlatShippingPrice:     cfg.FlatShippingPrice,
	}

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, rtRepo, issuer, validator.NewAuthValidator(userRepo))
	userUC := usecase.NewUserUsecase(userRepo, rtRepo, auditRepo)
	productUC := usecase.NewProductUsecase(txManager, productRepo, reviewRepo)
	orderUC := usecase.NewOrderUsecase(txManager, orderRepo, orderItemRepo, gateway, events, rules, cfg.Currency, logger)
	adminOrderUC := usecase.NewAdminOrderUsecase(orderRepo, orderItemRepo, auditRepo, events, logger)
	adminProductUC := usecase.NewAdminProductUsecase(productRepo, inventoryRepo, auditRepo)

	//Handler生成
	handlers := server.Handlers{
		Auth:         handler.NewAuthHandler(authUC, cfg),
		User:         handler.NewUserHandler(userUC),
		Product:      handler.NewProductHandler(productUC),
		Order:        handler.NewOrderHandler(orderUC, m),
		Webhook:      handler.NewWebhookHandler(orderUC, cfg.StripeWebhookSecret, dedup, m, logger),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminProduct: handler.NewAdminProductHandler(adminProductUC),
		AdminUser:    handler.NewAdminUserHandler(userUC),
	}

	e := server.New(cfg, userRepo, handlers, m, logger)

	//SIGINT/SIGTERMで停止
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("server starting", "port", cfg.Port)
	if err := server.Start(ctx, e, ":"+cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
