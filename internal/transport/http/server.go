package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"docqa/internal/bootstrap"
	"docqa/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     app.Config.App.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	maxUpload := int64(app.Config.App.MaxUploadMB) << 20
	if maxUpload > 0 {
		router.MaxMultipartMemory = maxUpload
	}

	healthHandler := handler.NewHealthHandler(app)
	documentHandler := handler.NewDocumentHandler(app.Documents, maxUpload)
	queryHandler := handler.NewQueryHandler(app.Query)
	historyHandler := handler.NewHistoryHandler(app.History)

	router.GET("/healthz", healthHandler.Check)

	router.POST("/upload", documentHandler.Upload)
	router.GET("/documents", documentHandler.List)
	router.DELETE("/delete-document/:filename", documentHandler.Delete)

	router.POST("/ask", queryHandler.Ask)
	router.POST("/query", queryHandler.Query)

	router.GET("/history", historyHandler.History)
	router.GET("/analytics", historyHandler.Analytics)

	return router
}
