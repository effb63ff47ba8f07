package api

import (
	"net/http"
	"regexp"
	"sync"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/clearstack/docs"
	"github.com/d60-Lab/clearstack/internal/api/handler"
	"github.com/d60-Lab/clearstack/internal/api/middleware"
)

var (
	flagKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)
	registerOnce   sync.Once
)

type RouterConfig struct {
	JWTSecret   string
	ServiceName string
	Swagger     bool
}

func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("flagkey", func(fl validator.FieldLevel) bool {
				return flagKeyPattern.MatchString(fl.Field().String())
			})
		}
	})
}

// NewRouter 注册管理端路由
func NewRouter(cfg RouterConfig, h *handler.Handler) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	admin := r.Group("/api/v1/admin",
		middleware.Auth(cfg.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin))
	{
		admin.GET("/outbox/stats", h.OutboxStats)
		admin.POST("/outbox/dispatch", h.DispatchOutbox)
		admin.GET("/scheduler/status", h.SchedulerStatus)

		admin.GET("/integration/settings", h.GetSettings)
		admin.PUT("/integration/settings", h.UpdateSettings)
		admin.POST("/integration/test", h.SendTestEvent)
		admin.POST("/integration/export", h.Export)

		admin.GET("/flags", h.ListFlags)
		admin.PATCH("/flags/:key", h.SetFlag)
	}
	return r
}
