package api

import (
	"net/http"

	"decay-fit/internal/api/handlers"
	"decay-fit/internal/api/middleware"
	"decay-fit/internal/data"

	"github.com/gin-gonic/gin"
)

// Options wires the router's collaborators. Zero values are valid.
type Options struct {
	Cache       *data.ResultCache
	Store       handlers.TableSaver
	// CORSOrigins overrides CORS_ORIGINS when non-nil.
	CORSOrigins []string
	MaxFiles    int
	// MaxUploadBytes bounds the in-memory part of a multipart upload.
	MaxUploadBytes int64
}

// NewRouter builds the HTTP API.
func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	if opts.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = opts.MaxUploadBytes
	}

	if opts.CORSOrigins != nil {
		router.Use(middleware.CORSWithOrigins(opts.CORSOrigins))
	} else {
		router.Use(middleware.CORS())
	}
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())

	fitHandler := handlers.NewFitHandler(opts.Cache)
	batchHandler := handlers.NewBatchHandler(opts.Store, opts.MaxFiles)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/modes", handlers.ListModes)
		v1.POST("/fit", fitHandler.Fit)
		v1.POST("/batch", batchHandler.RunBatch)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
