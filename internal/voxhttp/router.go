package voxhttp

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/voxpipe/voxpipe/internal/crm"
)

// RouterConfig wires every handler the HTTP surface (spec.md §6) exposes.
type RouterConfig struct {
	Upload    *UploadHandler
	Results   *ResultsHandler
	Status    *StatusHandler
	Audio     *AudioHandler
	Operators *OperatorsHandler
	Health    *HealthHandler
	WS        *WSHandler
	CRM       *crm.Bridge

	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	if cfg.Health != nil {
		r.GET("/health", cfg.Health.Health)
	}
	if cfg.Upload != nil {
		r.POST("/upload", cfg.Upload.Upload)
	}
	if cfg.Results != nil {
		r.GET("/results", cfg.Results.List)
		r.GET("/results/:id", cfg.Results.Detail)
	}
	if cfg.Status != nil {
		r.GET("/status/:id", cfg.Status.Status)
	}
	if cfg.Audio != nil {
		r.GET("/audio/:id", cfg.Audio.Stream)
	}
	if cfg.Operators != nil {
		r.GET("/operators", cfg.Operators.List)
		r.GET("/operators/:id", cfg.Operators.Get)
	}
	if cfg.WS != nil {
		r.GET("/ws", cfg.WS.Serve)
	}
	if cfg.CRM != nil {
		r.POST("/crm/webhook", cfg.CRM.Webhook)
	}

	return r
}
