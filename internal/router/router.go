package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/authz"
	"github.com/Juddanxavier/track-sub003/internal/cache"
	"github.com/Juddanxavier/track-sub003/internal/config"
	adminhandlers "github.com/Juddanxavier/track-sub003/internal/http/handlers/admin"
	publichandlers "github.com/Juddanxavier/track-sub003/internal/http/handlers/public"
	"github.com/Juddanxavier/track-sub003/internal/http/response"
	"github.com/Juddanxavier/track-sub003/internal/logger"
	"github.com/Juddanxavier/track-sub003/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ts"
	}
	trackingLimiter := cache.NewRateLimiter(cache.RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:tracking", redisPrefix),
		WindowSeconds: cfg.Security.TrackingRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.TrackingRateLimit.MaxRequests,
	})
	loginLimiter := cache.NewRateLimiter(cache.RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxRequests,
	})
	signupLimiter := cache.NewRateLimiter(cache.RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:signup", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxRequests,
	})

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/tracking/:code", RateLimitMiddleware(trackingLimiter, KeyByIP), publicHandler.GetPublicTracking)
			public.POST("/webhooks/:provider", publicHandler.CarrierWebhook)
			public.POST("/complete-signup", RateLimitMiddleware(signupLimiter, KeyByIP), publicHandler.CompleteSignup)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/login", RateLimitMiddleware(loginLimiter, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)
			admin.GET("/login/captcha", adminHandler.GetLoginCaptcha)

			// 个人接口（仅 JWT，不走 RBAC，管理员只操作自己的数据）
			authed := admin.Group("")
			authed.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo))
			{
				authed.GET("/me", adminHandler.GetAdminProfile)
				authed.PUT("/me/password", adminHandler.UpdateAdminPassword)
				authed.POST("/logout", adminHandler.AdminLogout)
				authed.GET("/authz/me", adminHandler.GetAuthzMe)

				authed.GET("/notifications", adminHandler.GetNotifications)
				authed.GET("/notifications/unread-count", adminHandler.GetNotificationUnreadCount)
				authed.POST("/notifications/read", adminHandler.MarkNotificationsRead)
				authed.POST("/notifications/read-all", adminHandler.MarkAllNotificationsRead)
				authed.GET("/notifications/preferences", adminHandler.GetNotificationPreferences)
				authed.PUT("/notifications/preferences", adminHandler.UpdateNotificationPreference)
			}

			// 资源接口（JWT + RBAC）
			authorized := admin.Group("")
			authorized.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				// 仪表盘
				authorized.GET("/dashboard/overview", adminHandler.GetDashboardOverview)
				authorized.GET("/dashboard/trends", adminHandler.GetDashboardTrends)
				authorized.GET("/dashboard/carriers", adminHandler.GetDashboardCarriers)

				// 运单管理
				authorized.GET("/shipments", adminHandler.GetShipments)
				authorized.POST("/shipments", adminHandler.CreateShipment)
				authorized.POST("/shipments/tracking/bulk-validate", adminHandler.ValidateBulkTracking)
				authorized.POST("/shipments/tracking/bulk", adminHandler.ApplyBulkTracking)
				authorized.GET("/shipments/:id", adminHandler.GetShipment)
				authorized.PUT("/shipments/:id", adminHandler.UpdateShipment)
				authorized.DELETE("/shipments/:id", adminHandler.DeleteShipment)
				authorized.GET("/shipments/:id/events", adminHandler.GetShipmentEvents)
				authorized.POST("/shipments/:id/status", adminHandler.UpdateShipmentStatus)
				authorized.POST("/shipments/:id/tracking", adminHandler.AssignTracking)
				authorized.POST("/shipments/:id/tracking/resolve", adminHandler.ResolveTrackingConflict)
				authorized.POST("/shipments/:id/review", adminHandler.MarkShipmentReviewed)
				authorized.POST("/shipments/:id/sync", adminHandler.SyncShipment)
				authorized.POST("/shipments/:id/user", adminHandler.AssignShipmentUser)

				// 线索管理
				authorized.GET("/leads", adminHandler.GetLeads)
				authorized.POST("/leads", adminHandler.CreateLead)
				authorized.GET("/leads/:id", adminHandler.GetLead)
				authorized.PUT("/leads/:id", adminHandler.UpdateLead)
				authorized.DELETE("/leads/:id", adminHandler.DeleteLead)
				authorized.POST("/leads/:id/convert", adminHandler.ConvertLead)

				// 客户管理
				authorized.GET("/users", adminHandler.GetUsers)
				authorized.GET("/users/:id", adminHandler.GetUser)
				authorized.GET("/users/:id/shipments", adminHandler.GetUserShipments)
				authorized.POST("/users/:id/disable", adminHandler.DisableUser)

				// 登录日志
				authorized.GET("/login-logs", adminHandler.GetLoginLogs)

				// 权限管理
				authorized.GET("/authz/roles", adminHandler.ListAuthzRoles)
				authorized.POST("/authz/roles", adminHandler.CreateAuthzRole)
				authorized.DELETE("/authz/roles/:role", adminHandler.DeleteAuthzRole)
				authorized.GET("/authz/roles/:role/policies", adminHandler.GetAuthzRolePolicies)
				authorized.POST("/authz/policies", adminHandler.GrantAuthzPolicy)
				authorized.DELETE("/authz/policies", adminHandler.RevokeAuthzPolicy)
				authorized.GET("/authz/admins", adminHandler.ListAuthzAdmins)
				authorized.POST("/authz/admins", adminHandler.CreateAuthzAdmin)
				authorized.PUT("/authz/admins/:id", adminHandler.UpdateAuthzAdmin)
				authorized.DELETE("/authz/admins/:id", adminHandler.DeleteAuthzAdmin)
				authorized.GET("/authz/admins/:id/roles", adminHandler.GetAuthzAdminRoles)
				authorized.PUT("/authz/admins/:id/roles", adminHandler.SetAuthzAdminRoles)
				authorized.GET("/authz/permissions/catalog", func(ctx *gin.Context) {
					response.Success(ctx, buildAdminPermissionCatalog(r))
				})
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

type adminPermissionCatalogItem struct {
	Module     string `json:"module"`
	Method     string `json:"method"`
	Object     string `json:"object"`
	Permission string `json:"permission"`
}

func buildAdminPermissionCatalog(engine *gin.Engine) []adminPermissionCatalogItem {
	if engine == nil {
		return []adminPermissionCatalogItem{}
	}

	routes := engine.Routes()
	seen := make(map[string]struct{}, len(routes))
	items := make([]adminPermissionCatalogItem, 0, len(routes))

	for _, item := range routes {
		method := strings.ToUpper(strings.TrimSpace(item.Method))
		if method == "" || method == "OPTIONS" || method == "HEAD" {
			continue
		}
		if !strings.HasPrefix(item.Path, "/api/v1/admin/") {
			continue
		}
		if item.Path == "/api/v1/admin/login" || item.Path == "/api/v1/admin/login/captcha" {
			continue
		}
		object := authz.NormalizeObject(item.Path)
		permission := method + ":" + object
		if _, exists := seen[permission]; exists {
			continue
		}
		seen[permission] = struct{}{}
		items = append(items, adminPermissionCatalogItem{
			Module:     deriveAdminPermissionModule(object),
			Method:     method,
			Object:     object,
			Permission: permission,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Module == items[j].Module {
			if items[i].Object == items[j].Object {
				return items[i].Method < items[j].Method
			}
			return items[i].Object < items[j].Object
		}
		return items[i].Module < items[j].Module
	})

	return items
}

func deriveAdminPermissionModule(object string) string {
	normalized := strings.TrimPrefix(strings.TrimSpace(object), "/")
	if normalized == "" {
		return "system"
	}
	segments := strings.Split(normalized, "/")
	if len(segments) <= 1 {
		return segments[0]
	}
	if segments[0] != "admin" {
		return segments[0]
	}
	if segments[1] == "authz" {
		return "authz"
	}
	return segments[1]
}
