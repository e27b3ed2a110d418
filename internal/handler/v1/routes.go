package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/internal/middleware"
)

// RegisterRoutes mounts the v1 API on rg. Authentication is applied here;
// finer-grained ownership checks live in the services.
func RegisterRoutes(rg *gin.RouterGroup, tokens middleware.TokenValidator, avail *AvailabilityHandler, appts *AppointmentHandler) {
	api := rg.Group("", middleware.Authenticate(tokens))

	a := api.Group("/availability/:practitionerId/:date")
	{
		a.GET("", avail.FreeSlots)
		a.GET("/check", avail.Check)
		a.GET("/summary", middleware.RequireRoles(domain.RoleAdmin, domain.RoleDoctor, domain.RoleReceptionist), avail.Summary)
	}

	ap := api.Group("/appointments")
	{
		ap.POST("", appts.Create)
		ap.GET("", appts.List)
		ap.GET("/:id", appts.Get)
		ap.PUT("/:id/reschedule", middleware.RequireRoles(domain.RoleAdmin, domain.RoleDoctor, domain.RoleReceptionist), appts.Reschedule)
		ap.PATCH("/:id/status", appts.UpdateStatus)
		ap.DELETE("/:id", middleware.RequireRoles(domain.RoleAdmin, domain.RoleDoctor), appts.Delete)
	}
}
