package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/config"
	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	"helios.network/testnetapi/internal/middleware"
	"helios.network/testnetapi/internal/ratelimit"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	"helios.network/testnetapi/pkg/database"
	"helios.network/testnetapi/pkg/response"
	"helios.network/testnetapi/pkg/storage"
	"helios.network/testnetapi/pkg/token"
	"helios.network/testnetapi/pkg/validator"

	adminHttp "helios.network/testnetapi/internal/modules/admin/delivery/http"
	adminService "helios.network/testnetapi/internal/modules/admin/service"

	auditRepo "helios.network/testnetapi/internal/modules/audit/repository"
	auditService "helios.network/testnetapi/internal/modules/audit/service"

	badgeHttp "helios.network/testnetapi/internal/modules/badge/delivery/http"
	badgeRepo "helios.network/testnetapi/internal/modules/badge/repository"
	badgeService "helios.network/testnetapi/internal/modules/badge/service"

	contributorHttp "helios.network/testnetapi/internal/modules/contributor/delivery/http"
	contributorRepo "helios.network/testnetapi/internal/modules/contributor/repository"
	contributorService "helios.network/testnetapi/internal/modules/contributor/service"

	faucetHttp "helios.network/testnetapi/internal/modules/faucet/delivery/http"
	faucetRepo "helios.network/testnetapi/internal/modules/faucet/repository"
	faucetService "helios.network/testnetapi/internal/modules/faucet/service"

	leaderboardHttp "helios.network/testnetapi/internal/modules/leaderboard/delivery/http"
	leaderboardService "helios.network/testnetapi/internal/modules/leaderboard/service"

	notiHttp "helios.network/testnetapi/internal/modules/notification/delivery/http"
	notifRepo "helios.network/testnetapi/internal/modules/notification/repository"
	notifService "helios.network/testnetapi/internal/modules/notification/service"

	onboardingHttp "helios.network/testnetapi/internal/modules/onboarding/delivery/http"
	onboardingRepo "helios.network/testnetapi/internal/modules/onboarding/repository"
	onboardingService "helios.network/testnetapi/internal/modules/onboarding/service"

	searchService "helios.network/testnetapi/internal/modules/search/service"

	userHttp "helios.network/testnetapi/internal/modules/user/delivery/http"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	userService "helios.network/testnetapi/internal/modules/user/service"

	xpHttp "helios.network/testnetapi/internal/modules/xp/delivery/http"
	xpRepo "helios.network/testnetapi/internal/modules/xp/repository"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	engine      *gin.Engine
	db          *gorm.DB
	redisClient *redis.Client
	scheduler   gocron.Scheduler
	addr        string
}

// Handlers groups every route handler so tests can mount them on their own
// engine.
type Handlers struct {
	User        *userHttp.UserHandler
	XP          *xpHttp.XPHandler
	Faucet      *faucetHttp.FaucetHandler
	Onboarding  *onboardingHttp.OnboardingHandler
	Badge       *badgeHttp.BadgeHandler
	Contributor *contributorHttp.ContributorHandler
	Leaderboard *leaderboardHttp.LeaderboardHandler
	Notify      *notiHttp.NotificationHandler
	Admin       *adminHttp.AdminHandler
}

func NewServer(ctx context.Context, cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if err := validator.Register(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	steps := make([]string, 0, len(entity.AllSteps()))
	for _, s := range entity.AllSteps() {
		steps = append(steps, string(s))
	}
	if err := validator.RegisterEnum("step_key", steps...); err != nil {
		return nil, fmt.Errorf("register step_key: %w", err)
	}

	clk := clock.New()
	tx := database.NewTransactor(db)
	tokens := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	limiter := ratelimit.New(redisClient)

	fileStorage, err := storage.NewCloudinaryStorage(storage.Config{
		URL:       cfg.Cloudinary.URL,
		CloudName: cfg.Cloudinary.CloudName,
		APIKey:    cfg.Cloudinary.APIKey,
		APISecret: cfg.Cloudinary.APISecret,
	})
	if err != nil {
		if !errors.Is(err, storage.ErrNotConfigured) {
			return nil, err
		}
		logger.Warn("cloudinary not configured, uploads disabled")
		fileStorage = nil
	}

	chainStats, err := chain.NewStatsReader(ctx, cfg.EVMRPCURL)
	if err != nil {
		return nil, err
	}

	users := userRepo.NewUserRepository(db)
	activities := xpRepo.NewActivityRepository(db)
	claims := faucetRepo.NewClaimRepository(db)
	stepRepo := onboardingRepo.NewStepRepository(db)
	badges := badgeRepo.NewBadgeRepository(db)
	applications := contributorRepo.NewApplicationRepository(db)
	auditLogs := auditRepo.NewAuditRepository(db)
	recorder := auditService.NewRecorder(auditLogs)

	search := searchService.NewDisabled()
	if cfg.MeiliSearchHost != "" {
		search = searchService.NewMeiliSearchService(cfg.MeiliSearchHost, cfg.MeiliMasterKey, users)
	}

	notificationSvc := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), redisClient)

	ledger := xpService.NewLedger(xpService.LedgerDeps{
		Transactor:         tx,
		Users:              users,
		Activities:         activities,
		Levels:             cfg.XP.Levels,
		ContributionLevels: cfg.XP.ContributionLevels,
		Notifier:           notificationSvc,
		Clock:              clk,
	})

	userSvc := userService.NewUserService(users, search, fileStorage, limiter, tokens, clk, userService.Config{
		SignatureVerification: cfg.Auth.SignatureVerification,
		SignatureDomain:       cfg.Auth.SignatureDomain,
		ReferralCodes:         cfg.Auth.ReferralCodes,
		UploadFolder:          cfg.Cloudinary.UploadFolder,
		Levels:                cfg.XP.Levels,
		ContributionLevels:    cfg.XP.ContributionLevels,
	})

	xpSvc := xpService.NewXPService(ledger, users, activities, notificationSvc, clk, xpService.Config{
		DailyAmount:     cfg.XP.DailyAmount,
		MaxTransfer:     cfg.XP.MaxTransfer,
		ActivityRewards: cfg.XP.ActivityRewards,
	})

	faucetSvc := faucetService.NewFaucetService(faucetService.Deps{
		Claims:  claims,
		Users:   users,
		Ledger:  ledger,
		Sender:  chain.NewSimulatedSender(),
		Limiter: limiter,
		Clock:   clk,
	}, cfg.Faucet)

	onboardingSvc := onboardingService.NewOnboardingService(stepRepo, users, ledger, clk, onboardingService.Config{
		StepRewards: cfg.Onboarding.StepRewards,
		RewardXP:    cfg.Onboarding.RewardXP,
		RewardNFT:   cfg.Onboarding.RewardNFT,
	})

	badgeSvc := badgeService.NewBadgeService(badges, users, ledger, recorder, notificationSvc, clk)

	contributorSvc := contributorService.NewContributorService(contributorService.Deps{
		Transactor:   tx,
		Applications: applications,
		Users:        users,
		UserService:  userSvc,
		Files:        fileStorage,
		Audit:        recorder,
		Notifier:     notificationSvc,
		Clock:        clk,
		UploadFolder: cfg.Cloudinary.UploadFolder,
	})

	leaderboardSvc := leaderboardService.NewLeaderboardService(users, activities, cfg.XP.Levels, redisClient, clk)

	adminSvc := adminService.NewAdminService(adminService.Deps{
		Users:        users,
		UserService:  userSvc,
		Ledger:       ledger,
		XP:           xpSvc,
		Activities:   activities,
		Claims:       claims,
		Sweeper:      faucetSvc,
		Steps:        stepRepo,
		Badges:       badges,
		Applications: applications,
		AuditLogs:    auditLogs,
		Audit:        recorder,
		Search:       search,
		Chain:        chainStats,
	})

	h := Handlers{
		User:        userHttp.NewUserHandler(userSvc),
		XP:          xpHttp.NewXPHandler(xpSvc),
		Faucet:      faucetHttp.NewFaucetHandler(faucetSvc),
		Onboarding:  onboardingHttp.NewOnboardingHandler(onboardingSvc),
		Badge:       badgeHttp.NewBadgeHandler(badgeSvc),
		Contributor: contributorHttp.NewContributorHandler(contributorSvc),
		Leaderboard: leaderboardHttp.NewLeaderboardHandler(leaderboardSvc),
		Notify:      notiHttp.NewNotificationHandler(notificationSvc, redisClient, cfg.AllowedOrigins),
		Admin:       adminHttp.NewAdminHandler(adminSvc),
	}

	scheduler, err := newScheduler(cfg, faucetSvc, search)
	if err != nil {
		return nil, err
	}

	response.SetProduction(cfg.IsProduction())
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	setupCORS(router, cfg.AllowedOrigins)
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	authMiddleware := middleware.NewAuthMiddleware(users, tokens, cfg.Auth.AdminWallets)
	RegisterRoutes(router, authMiddleware, h)

	return &Server{
		engine:      router,
		db:          db,
		redisClient: redisClient,
		scheduler:   scheduler,
		addr:        fmt.Sprintf(":%d", cfg.Port),
	}, nil
}

// RegisterRoutes mounts every route under /api.
func RegisterRoutes(router *gin.Engine, authMiddleware *middleware.AuthMiddleware, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	// Public routes (no auth required)
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.User.Register)
		auth.POST("/login", h.User.Login)
	}
	api.GET("/users/search", h.User.Search)
	api.GET("/users/profile/:wallet", h.User.GetProfile)
	api.GET("/users/stats/:wallet", h.User.Stats)
	api.GET("/users/nfts/:wallet", h.User.NFTs)
	api.GET("/faucet/tokens", h.Faucet.AvailableTokens)
	api.GET("/badges", h.Badge.List)
	api.GET("/badges/:id", h.Badge.Get)
	api.GET("/contributors", h.Contributor.List)
	api.GET("/contributors/stats", h.Contributor.Stats)
	api.GET("/contributors/profile/:id", h.Contributor.Profile)
	api.GET("/leaderboard", h.Leaderboard.GetLeaderboard)
	api.GET("/leaderboard/contributors", h.Leaderboard.GetContributors)
	api.GET("/leaderboard/stats", h.Leaderboard.GetStats)

	// Protected routes
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.GET("/users/me", h.User.Me)
		protected.PUT("/users/profile", h.User.UpdateProfile)
		protected.POST("/users/avatar", h.User.UploadAvatar)
		protected.GET("/users/xp/level", h.User.LevelInfo)

		protected.POST("/xp/daily", h.XP.ClaimDaily)
		protected.GET("/xp/daily/status", h.XP.DailyStatus)
		protected.POST("/xp/activity", h.XP.LogActivity)
		protected.POST("/xp/transfer", h.XP.Transfer)
		protected.GET("/xp/history", h.XP.History)

		protected.POST("/faucet/request", h.Faucet.RequestTokens)
		protected.POST("/faucet/eligibility", h.Faucet.CheckEligibility)
		protected.GET("/faucet/history", h.Faucet.History)

		protected.POST("/onboarding/start", h.Onboarding.Start)
		protected.POST("/onboarding/complete", h.Onboarding.Complete)
		protected.GET("/onboarding/progress", h.Onboarding.Progress)
		protected.POST("/onboarding/reset", h.Onboarding.Reset)
		protected.POST("/onboarding/claim-reward", h.Onboarding.ClaimReward)

		protected.GET("/users/badges", h.Badge.MyBadges)

		protected.POST("/contributors/apply", h.Contributor.Apply)
		protected.GET("/contributors/application", h.Contributor.MyApplication)
		protected.PUT("/contributors/profile", h.Contributor.UpdateProfile)

		protected.GET("/leaderboard/me", h.Leaderboard.GetMyRank)

		protected.GET("/notifications", h.Notify.GetNotifications)
		protected.GET("/notifications/unread-count", h.Notify.UnreadCount)
		protected.PUT("/notifications/:id/read", h.Notify.MarkAsRead)
		protected.PUT("/notifications/read-all", h.Notify.MarkAllAsRead)
		protected.GET("/notifications/ws", h.Notify.HandleWebSocket)

		adminGroup := protected.Group("/admin")
		adminGroup.Use(authMiddleware.RequireAdmin())
		{
			adminGroup.GET("/users", h.Admin.GetAllUsers)
			adminGroup.GET("/users/:id", h.Admin.GetUser)
			adminGroup.PUT("/users/:id/status", h.Admin.UpdateUserStatus)
			adminGroup.DELETE("/users/:id", h.Admin.DeleteUser)
			adminGroup.DELETE("/users/wallet/:wallet", h.User.DeleteByWallet)
			adminGroup.POST("/xp/grant", h.Admin.GrantXP)
			adminGroup.GET("/xp/activities", h.Admin.GetActivities)
			adminGroup.GET("/faucet/claims", h.Admin.GetClaims)
			adminGroup.GET("/audit-logs", h.Admin.GetAuditLogs)
			adminGroup.GET("/stats", h.Admin.GetSystemStats)
			adminGroup.GET("/blockchain/stats", h.Admin.GetBlockchainStats)
			adminGroup.POST("/jobs/reindex", h.Admin.Reindex)
			adminGroup.POST("/jobs/sweep-claims", h.Admin.SweepClaims)

			adminGroup.POST("/badges", h.Badge.Create)
			adminGroup.PUT("/badges/:id", h.Badge.Update)
			adminGroup.DELETE("/badges/:id", h.Badge.Delete)
			adminGroup.POST("/badges/:id/assign", h.Badge.Assign)

			adminGroup.GET("/contributors/applications", h.Contributor.Applications)
			adminGroup.PUT("/contributors/applications/:id/review", h.Contributor.Review)
			adminGroup.POST("/contributors/role", h.Contributor.AssignRole)
		}
	}
}

func newScheduler(cfg *config.Config, faucetSvc faucetService.FaucetService, search searchService.SearchService) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Faucet.SweepInterval),
		gocron.NewTask(func() {
			ctx := logger.WithContext(context.Background(), zap.String("job", "faucet_sweep"))
			n, err := faucetSvc.SweepStale(ctx)
			if err != nil {
				logger.ErrorCtx(ctx, err)
				return
			}
			if n > 0 {
				logger.InfoCtx(ctx, "stale faucet claims failed", zap.Int64("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule faucet sweep: %w", err)
	}

	if search.Enabled() && cfg.SearchReindex > 0 {
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.SearchReindex),
			gocron.NewTask(func() {
				ctx := logger.WithContext(context.Background(), zap.String("job", "search_reindex"))
				n, err := search.Reindex(ctx)
				if err != nil {
					logger.ErrorCtx(ctx, err)
					return
				}
				logger.InfoCtx(ctx, "search index rebuilt", zap.Int("users", n))
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule search reindex: %w", err)
		}
	}

	return scheduler, nil
}

// Run serves until ctx is cancelled, then drains requests and stops the
// background jobs.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = s.scheduler.Shutdown()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if serr := s.scheduler.Shutdown(); serr != nil {
		logger.Error(serr)
	}
	return err
}

func setupCORS(router *gin.Engine, origins []string) {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
