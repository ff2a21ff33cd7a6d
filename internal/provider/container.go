package provider

import (
	"github.com/Juddanxavier/track-sub003/internal/authz"
	"github.com/Juddanxavier/track-sub003/internal/cache"
	"github.com/Juddanxavier/track-sub003/internal/carrier"
	"github.com/Juddanxavier/track-sub003/internal/config"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/models"
	"github.com/Juddanxavier/track-sub003/internal/queue"
	"github.com/Juddanxavier/track-sub003/internal/repository"
	"github.com/Juddanxavier/track-sub003/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo         repository.AdminRepository
	UserRepo          repository.UserRepository
	LeadRepo          repository.LeadRepository
	ShipmentRepo      repository.ShipmentRepository
	ShipmentEventRepo repository.ShipmentEventRepository
	NotificationRepo  repository.NotificationRepository
	LoginLogRepo      repository.LoginLogRepository
	DashboardRepo     repository.DashboardRepository

	// Services
	AuthzService         *authz.Service
	AuthService          *service.AuthService
	CaptchaService       *service.CaptchaService
	LoginLogService      *service.LoginLogService
	EmailService         *service.EmailService
	ShipmentEventService *service.ShipmentEventService
	TrackingService      *service.TrackingService
	ShipmentService      *service.ShipmentService
	WhiteLabelService    *service.WhiteLabelService
	CarrierSyncService   *service.CarrierSyncService
	LeadService          *service.LeadService
	UserService          *service.UserService
	NotificationService  *service.NotificationService
	DashboardService     *service.DashboardService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.LeadRepo = repository.NewLeadRepository(db)
	c.ShipmentRepo = repository.NewShipmentRepository(db)
	c.ShipmentEventRepo = repository.NewShipmentEventRepository(db)
	c.NotificationRepo = repository.NewNotificationRepository(db)
	c.LoginLogRepo = repository.NewLoginLogRepository(db)
	c.DashboardRepo = repository.NewDashboardRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.EmailService = service.NewEmailService(&c.Config.Email)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.LoginLogService = service.NewLoginLogService(c.LoginLogRepo)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)

	c.ShipmentEventService = service.NewShipmentEventService(c.ShipmentRepo, c.ShipmentEventRepo)
	c.TrackingService = service.NewTrackingService(c.ShipmentRepo, c.ShipmentEventService, c.QueueClient)
	c.ShipmentService = service.NewShipmentService(c.ShipmentRepo, c.ShipmentEventService, c.TrackingService, c.QueueClient)
	c.WhiteLabelService = service.NewWhiteLabelService(&c.Config.WhiteLabel)

	carrierProvider, err := carrier.New(&c.Config.Carriers)
	if err != nil {
		logger.Warnw("provider_init_carrier_failed", "provider", c.Config.Carriers.Provider, "error", err)
	}
	c.CarrierSyncService = service.NewCarrierSyncService(
		c.ShipmentRepo,
		c.ShipmentService,
		c.ShipmentEventService,
		carrierProvider,
		c.QueueClient,
		&c.Config.Sync,
	)

	c.LeadService = service.NewLeadService(c.LeadRepo, c.ShipmentService, c.QueueClient)
	c.UserService = service.NewUserService(
		c.UserRepo,
		c.ShipmentRepo,
		c.ShipmentEventService,
		c.QueueClient,
		&c.Config.Signup,
		c.Config.Security.PasswordPolicy,
	)
	c.NotificationService = service.NewNotificationService(c.NotificationRepo, c.AdminRepo, c.EmailService)
	c.DashboardService = service.NewDashboardService(c.DashboardRepo)
}
