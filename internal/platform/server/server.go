package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xxz807/fieldledger/internal/platform/actor"
	"github.com/xxz807/fieldledger/internal/platform/httpx"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
	HeaderRequestID = "X-Request-ID"
)

// RouteRegistrar 各模块的 Handler
type RouteRegistrar interface {
	RegisterRoutes(r *gin.RouterGroup)
}

// Server 封装 HTTP 服务
type Server struct {
	engine *gin.Engine
	logger *zap.Logger
	port   string
	server *http.Server
}

// NewServer 初始化 HTTP Server (包含网关逻辑)
func NewServer(logger *zap.Logger, cfgPort string, cfgMode string, handlers ...RouteRegistrar) *Server {
	// 1. 设置 Gin 模式
	if cfgMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// ==========================================
	// Logical Gateway Layer (逻辑网关层)
	// ==========================================

	// 1. Recovery (防崩)
	r.Use(gin.Recovery())

	// 2. Request ID，先于日志，这样日志里能带上
	r.Use(RequestID())

	// 3. Custom Logger (接入 Zap)
	r.Use(AccessLog(logger))

	// 4. CORS (跨域处理)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Actor-ID, X-Actor-Role")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	// 5. 操作者身份 (由上游网关完成认证，这里只读取请求头)
	r.Use(Actor())

	// ==========================================
	// Routing Layer (路由分发)
	// ==========================================

	v1 := r.Group("/api/v1")
	{
		for _, h := range handlers {
			h.RegisterRoutes(v1)
		}

		// 健康检查
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "UP"})
		})
	}

	return &Server{
		engine: r,
		logger: logger,
		port:   cfgPort,
		server: &http.Server{
			Addr:              ":" + cfgPort,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler 测试时直接拿 engine
func (s *Server) Handler() http.Handler {
	return s.engine
}

// RequestID 透传或生成请求 ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(HeaderRequestID, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// AccessLog 每个请求一行日志
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next() // 执行后续逻辑

		logger.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString(HeaderRequestID)),
			zap.String("actor", c.GetHeader(HeaderActorID)),
			zap.Duration("cost", time.Since(start)),
		)
	}
}

// Actor 从请求头解析操作者；缺失时不注入，写接口自行返回 401
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if id == "" {
			c.Next()
			return
		}
		a := actor.Actor{
			ID:        id,
			Role:      actor.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))),
			Origin:    c.ClientIP(),
			RequestID: c.GetString(HeaderRequestID),
		}
		if err := a.Validate(); err != nil {
			httpx.RespondError(c, err)
			return
		}
		c.Set(httpx.ContextKeyActor, a)
		c.Request = c.Request.WithContext(actor.WithActor(c.Request.Context(), a))
		c.Next()
	}
}

// Run 启动服务
func (s *Server) Run() error {
	s.logger.Info("fieldledger api started", zap.String("port", s.port))
	return s.server.ListenAndServe()
}

// Shutdown 优雅停机 (Graceful Shutdown)
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
