package routers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/StudyGroup/internal/handlers"
	"github.com/Gopher0727/StudyGroup/internal/metrics"
	"github.com/Gopher0727/StudyGroup/internal/middlewares"
	"github.com/Gopher0727/StudyGroup/middleware/jwt"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
	"github.com/Gopher0727/StudyGroup/utils/ratelimit"
)

// Deps 路由所需的组件，Limiter 和 Pool 可以为 nil
type Deps struct {
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Tokens   *jwt.TokenManager
	Limiter  middlewares.Limiter
	Rules    ratelimit.Rules
	Pool     middlewares.Submitter
	Timeout  time.Duration
	Study    *handlers.StudyHandler
	Request  *handlers.RequestHandler
	Member   *handlers.MemberHandler
	Category *handlers.CategoryHandler
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d Deps) {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.RequestIDHeader}
	config.ExposeHeaders = []string{logger.RequestIDHeader, "Retry-After"}
	r.Use(cors.New(config))
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(d.Log))
	r.Use(d.Metrics.GinMiddleware())

	// 健康检查和指标不进入协程池
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "OK",
		})
	})
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := r.Group("/api/v1")
	api.Use(middlewares.TimeoutMiddleware(d.Timeout))
	api.Use(middlewares.AsyncMiddleware(d.Pool, d.Log))

	RegisterStudyRoutes(api, d)
	RegisterUserRoutes(api, d)

	api.GET("/categories", d.Category.ListCategories)
}

// RegisterStudyRoutes 小组、成员、入组申请
func RegisterStudyRoutes(api *gin.RouterGroup, d Deps) {
	auth := middlewares.AuthMiddleware(d.Tokens)
	joinLimit := middlewares.RateLimitMiddleware(d.Limiter, "join_request", d.Rules.JoinRequest)
	decisionLimit := middlewares.RateLimitMiddleware(d.Limiter, "decision", d.Rules.Decision)

	studies := api.Group("/studies")
	{
		studies.GET("", d.Study.ListStudies)    // 公开列表
		studies.GET("/:uuid", d.Study.GetStudy) // 小组详情
	}

	authed := studies.Group("")
	authed.Use(auth)
	{
		authed.POST("", d.Study.CreateStudy)
		authed.PUT("/:uuid", d.Study.UpdateStudy)
		authed.DELETE("/:uuid", d.Study.DeleteStudy)

		// 成员
		authed.GET("/:uuid/members", d.Member.ListMembers)
		authed.DELETE("/:uuid/members/:member_id", d.Member.RemoveMember)

		// 入组申请
		authed.GET("/:uuid/requests", d.Request.ListPending)
		authed.POST("/:uuid/requests", joinLimit, d.Request.SubmitRequest)
		authed.POST("/:uuid/requests/:request_id", decisionLimit, d.Request.ApproveRequest)
		authed.DELETE("/:uuid/requests/:request_id", decisionLimit, d.Request.RejectRequest)
	}
}

func RegisterUserRoutes(api *gin.RouterGroup, d Deps) {
	users := api.Group("/users")
	users.Use(middlewares.AuthMiddleware(d.Tokens))
	{
		users.GET("/me/studies", d.Study.ListMyStudies) // 我加入的小组
	}
}
