package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/classroom/internal/api/handlers"
	"github.com/your-org/classroom/internal/api/ws"
	"github.com/your-org/classroom/internal/auth"
	"github.com/your-org/classroom/internal/queue"
	"github.com/your-org/classroom/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	// EmbedFn extracts a face embedding from image bytes, backing the
	// student face-enrollment and search endpoints.
	EmbedFn func(imageData []byte) ([]float32, float32, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Students & enrolled faces
	studentH := handlers.NewStudentHandler(cfg.DB, cfg.MinIO)
	studentH.EmbedFn = cfg.EmbedFn
	v1.POST("/students", studentH.Create)
	v1.GET("/students", studentH.List)
	v1.GET("/students/:id", studentH.Get)
	v1.POST("/students/:id/faces", studentH.AddFace)
	v1.GET("/students/:id/faces", studentH.ListFaces)
	v1.DELETE("/students/:id/faces/:embeddingId", studentH.DeleteFace)
	v1.POST("/search", studentH.Search)

	// Sessions
	sessionH := handlers.NewSessionHandler(cfg.DB, cfg.Producer)
	v1.POST("/sessions", sessionH.Create)
	v1.GET("/sessions", sessionH.List)
	v1.GET("/sessions/:id", sessionH.Get)
	v1.POST("/sessions/:id/start", sessionH.Start)
	v1.POST("/sessions/:id/stop", sessionH.Stop)
	v1.POST("/sessions/:id/pause", sessionH.Pause)
	v1.POST("/sessions/:id/resume", sessionH.Resume)
	v1.DELETE("/sessions/:id", sessionH.Delete)

	// Session events
	eventH := handlers.NewEventHandler(cfg.DB, cfg.MinIO)
	v1.GET("/sessions/:id/events", eventH.List)
	v1.GET("/events/:eventId/snapshot", eventH.Snapshot)

	return r
}
