package v1

import (
	"github.com/gin-gonic/gin"

	"toolhub/services/conversion-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all v1 routes under /v1 prefix.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")
	group.GET("/tools", r.handlers.Tools.List)
	group.POST("/tools/:name/convert", r.handlers.Tools.Convert)
	group.POST("/tools/:name/convert-bulk", r.handlers.Tools.ConvertBulk)
	group.GET("/executions/:id", r.handlers.Executions.Get)
	group.POST("/executions/:id/callback", r.handlers.Executions.Callback)
	group.GET("/executions/:id/download", r.handlers.Executions.Download)
}
