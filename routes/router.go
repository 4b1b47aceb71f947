package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/api"
	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/config"
	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/service"
	"github.com/asmb123/voting-workshop-bhu/websocket"
)

// Dependencies 路由需要的组件
type Dependencies struct {
	Server        config.ServerConfig
	Logger        *zap.Logger
	VotingService service.VotingService
	Authenticator *identity.Authenticator
	VoteLimiter   cache.RateLimiter
	Hub           *websocket.Hub
	HealthChecks  map[string]api.Pinger
}

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger), api.ErrorHandler(logger))

	// 配置CORS中间件
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(deps.Server.CORSAllowedOrigins) == 0 || contains(deps.Server.CORSAllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = deps.Server.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
	}
	router.Use(cors.New(corsConfig))

	auth := api.Authenticate(deps.Authenticator, logger)
	voteLimit := func(c *gin.Context) { c.Next() }
	if deps.VoteLimiter != nil {
		voteLimit = api.RateLimit(deps.VoteLimiter, logger)
	}

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", api.NewHealthController(deps.HealthChecks).HealthCheck)

		api.NewVotingController(deps.VotingService, logger).RegisterRoutes(apiGroup, auth, voteLimit)

		if deps.Hub != nil {
			ws := websocket.NewHandler(deps.Hub, func(ctx context.Context, pollID uint64) (interface{}, error) {
				return deps.VotingService.GetPoll(ctx, pollID)
			}, deps.Server.CORSAllowedOrigins, logger)
			apiGroup.GET("/polls/:id/ws", ws.HandleWebSocketConnection)
		}
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, cfg config.ServerConfig, logger *zap.Logger) *Server {
	addr := ":" + cfg.Port
	srv := &Server{
		&http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	return srv
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
