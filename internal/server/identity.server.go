package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"identity-service/internal/config"
	"identity-service/internal/events"
	"identity-service/internal/handler"
	"identity-service/internal/repository"
	"identity-service/internal/router"
	"identity-service/internal/service/notification"
	oauth2svc "identity-service/internal/service/oauth2"
	"identity-service/internal/service/session"
	"identity-service/internal/usecase"
	"identity-service/pkg/kafka"
	"identity-service/pkg/utils"
	"identity-service/shared/auth/middleware"
	"identity-service/shared/auth/pkg/jwtutil"
	"identity-service/shared/utils/cache"
	"identity-service/shared/utils/id"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	http    *http.Server
	grpc    *grpc.Server
	health  *health.Server
	closers []func() error
}

// New builds every dependency. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (_ *Server, err error) {
	s := &Server{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}

	key, generated, err := jwtutil.LoadOrGenerateKey(cfg.JWT.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	if generated {
		logger.Warn("JWT_PRIVATE_KEY_PATH not set, using an ephemeral signing key; sessions will not survive a restart")
	}
	tokens := jwtutil.NewGenerator(key, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.KeyID, cfg.JWT.SessionTTL)
	verifier := jwtutil.NewVerifier(&key.PublicKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	verifier.AddKey(cfg.JWT.KeyID, &key.PublicKey)
	jwks, err := jwtutil.BuildJWKS(&key.PublicKey, cfg.JWT.KeyID)
	if err != nil {
		return nil, fmt.Errorf("build jwks: %w", err)
	}

	sf, err := id.NewSnowflake(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("init snowflake: %w", err)
	}

	notifier, err := s.newNotifier()
	if err != nil {
		return nil, err
	}

	var (
		revoker    usecase.SessionRevoker = session.NewMemoryRevoker()
		publishers usecase.EventFanout
	)
	if len(cfg.RedisAddrs) > 0 {
		rc := cache.NewCache(cfg.RedisAddrs, cfg.RedisPass, cfg.RedisCluster)
		s.closers = append(s.closers, rc.Close)
		if err := rc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		revoker = session.NewRedisRevoker(rc)
		publishers = append(publishers, events.NewRedisEventPublisher(rc.Client(), logger))
	} else {
		logger.Warn("REDIS_ADDR not set, session revocation is local to this instance")
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewAccountEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, producer.Close)
		publishers = append(publishers, producer)
	}
	var eventSink usecase.EventPublisher
	if len(publishers) > 0 {
		eventSink = publishers
	}

	policy, err := usecase.ParseResendPolicy(cfg.OTPResendPolicy)
	if err != nil {
		return nil, err
	}

	uc := usecase.NewIdentityUsecase(
		store,
		utils.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency),
		notifier,
		tokens,
		verifier,
		revoker,
		eventSink,
		sf,
		logger,
		usecase.Options{CodeTTL: cfg.OTPTTL, ResendPolicy: policy},
	)

	var google handler.FederatedVerifier
	if gv := oauth2svc.NewGoogleVerifier(cfg.GoogleClientID); gv.Enabled() {
		google = gv
	} else {
		logger.Info("GOOGLE_CLIENT_ID not set, federated sign-in disabled")
	}

	h := handler.NewIdentityHandler(uc, google, jwks, cfg.ServiceName, logger)
	auth := middleware.NewAuthMiddleware(uc, logger)
	r := router.SetupRoutes(chi.NewRouter(), h, auth, cfg.CORSOrigins, logger)

	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.grpc = grpc.NewServer()
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	return s, nil
}

func (s *Server) openStore(ctx context.Context) (repository.CredentialStore, error) {
	if s.cfg.StoreDriver == config.DriverSQLite {
		store, err := repository.OpenSQLite(ctx, s.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	}

	pool, err := config.ConnectDB(ctx, s.cfg.DB, s.logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })
	repo := repository.NewAccountRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return repo, nil
}

func (s *Server) newNotifier() (usecase.NotificationGateway, error) {
	if s.cfg.NotifierDriver == config.NotifierLog {
		s.logger.Warn("NOTIFIER_DRIVER=log, codes are written to the log and never delivered")
		return notification.NewLogNotifier(s.logger), nil
	}
	templates, err := notification.NewTemplateService(s.cfg.AppName, s.cfg.OTPTTL)
	if err != nil {
		return nil, err
	}
	return notification.NewSMTPNotifier(notification.SMTPConfig{
		Host:           s.cfg.SMTP.Host,
		Port:           s.cfg.SMTP.Port,
		Username:       s.cfg.SMTP.Username,
		Password:       s.cfg.SMTP.Password,
		From:           s.cfg.SMTP.From,
		AttemptTimeout: s.cfg.SMTP.Timeout,
		MaxAttempts:    s.cfg.SMTP.MaxAttempts,
	}, templates, s.logger), nil
}

// Run serves HTTP and gRPC until ctx is cancelled, then drains both.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.logger.Info("gRPC server listening", zap.String("addr", s.cfg.GRPCAddr))
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(s.cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
		return s.grpc.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.http.Shutdown(shutdownCtx)
		s.grpc.GracefulStop()
		return err
	})

	return g.Wait()
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("error during shutdown", zap.Error(err))
		}
	}
	s.closers = nil
}
