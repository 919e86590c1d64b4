package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/library-api/api/swagger"
	"github.com/noah-isme/library-api/internal/handler"
	"github.com/noah-isme/library-api/internal/middleware"
	"github.com/noah-isme/library-api/internal/service"
	"github.com/noah-isme/library-api/pkg/config"
	"github.com/noah-isme/library-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/library-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/library-api/pkg/middleware/requestid"
)

type routes struct {
	auth       *handler.AuthHandler
	categories *handler.CategoryHandler
	books      *handler.BookHandler
	students   *handler.StudentHandler
	loans      *handler.LoanHandler
	reports    *handler.ReportHandler
	exports    *handler.ExportHandler
	metrics    *handler.MetricsHandler
	tokens     middleware.TokenValidator
	metricsSvc *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(h.metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", h.auth.Login)
	// Signed token is the credential for downloads.
	api.GET("/exports/download", h.exports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.tokens), middleware.RequireStaff())

	secured.GET("/auth/me", h.auth.Me)
	secured.POST("/auth/password", h.auth.ChangePassword)

	categories := secured.Group("/categories")
	categories.GET("", h.categories.List)
	categories.POST("", middleware.Audit(logr, "category.create"), h.categories.Create)
	categories.GET("/:id", h.categories.Get)
	categories.PUT("/:id", middleware.Audit(logr, "category.update"), h.categories.Update)
	categories.DELETE("/:id", middleware.Audit(logr, "category.delete"), h.categories.Delete)

	books := secured.Group("/books")
	books.GET("", h.books.List)
	books.POST("", middleware.Audit(logr, "book.create"), h.books.Create)
	books.GET("/:isbn", h.books.Get)
	books.PUT("/:isbn", middleware.Audit(logr, "book.update"), h.books.Update)
	books.DELETE("/:isbn", middleware.Audit(logr, "book.delete"), h.books.Delete)
	books.GET("/:isbn/loans", h.books.Loans)

	students := secured.Group("/students")
	students.GET("", h.students.List)
	students.POST("", middleware.Audit(logr, "student.register"), h.students.Create)
	students.GET("/:code", h.students.Get)
	students.PUT("/:code", middleware.Audit(logr, "student.update"), h.students.Update)
	students.POST("/:code/deactivate", middleware.Audit(logr, "student.deactivate"), h.students.Deactivate)
	students.DELETE("/:code", middleware.RequireAdmin(), middleware.Audit(logr, "student.delete"), h.students.Delete)
	students.GET("/:code/eligibility", h.students.Eligibility)
	students.GET("/:code/loans", h.students.Loans)

	loans := secured.Group("/loans")
	loans.GET("", h.loans.List)
	loans.POST("", middleware.Audit(logr, "loan.open"), h.loans.Open)
	loans.POST("/overdue/refresh", middleware.Audit(logr, "loan.overdue_refresh"), h.loans.RefreshOverdue)
	loans.GET("/:id", h.loans.Get)
	loans.POST("/:id/return", middleware.Audit(logr, "loan.return"), h.loans.Return)
	loans.POST("/:id/remind", middleware.Audit(logr, "loan.remind"), h.loans.Remind)

	secured.GET("/reports/statistics", h.reports.Statistics)
	secured.POST("/exports/loans", middleware.Audit(logr, "export.loans"), h.exports.Loans)

	return r
}
