package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"eventsphere/cmd/middleware"
	"eventsphere/internal/service"
)

type Routers struct {
	Service        service.Service
	JWTSecret      string
	UploadsDir     string
	AllowedOrigins []string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")

	app.Use(middleware.LoggingMiddleware())
	if len(r.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = r.AllowedOrigins
		corsCfg.AllowCredentials = true
		app.Use(cors.New(corsCfg))
	} else {
		app.Use(cors.Default())
	}

	auth := middleware.Auth(r.JWTSecret)
	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", r.Service.GetAllEvents)
	apiGroup.POST("/events", auth, r.Service.CreateEvent)
	apiGroup.GET("/events/recommended", auth, r.Service.GetRecommendations)
	apiGroup.POST("/events/:id/register", auth, r.Service.Register)
	apiGroup.POST("/events/:id/qr-attendance", r.Service.QRAttendance)
	apiGroup.POST("/events/:id/manual-attendance", auth, r.Service.ManualAttendance)
	apiGroup.PATCH("/events/:id/status", auth, r.Service.UpdateEventStatus)
	apiGroup.POST("/events/:id/certificate-template", auth, r.Service.UploadCertificateTemplate)
	apiGroup.GET("/events/:id/feedback", r.Service.GetFeedback)
	apiGroup.POST("/events/:id/feedback", auth, r.Service.SubmitFeedback)

	apiGroup.GET("/certificates/download/:eventId/:studentId", auth, r.Service.DownloadCertificate)

	apiGroup.GET("/users", auth, r.Service.ListUsers)
	apiGroup.PATCH("/users/:id/role", auth, r.Service.UpdateUserRole)
	apiGroup.GET("/users/profile", auth, r.Service.GetProfile)
	apiGroup.PATCH("/users/profile", auth, r.Service.UpdateProfile)
	apiGroup.POST("/users/profile/image", auth, r.Service.UploadProfileImage)

	apiGroup.POST("/auth/forgot-password", r.Service.ForgotPassword)

	apiGroup.GET("/analytics/summary", auth, r.Service.AnalyticsSummary)

	app.Static("/uploads", r.UploadsDir)

	return app
}
