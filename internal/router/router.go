package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/taskboard/api/handler"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Task    *apiHandler.TaskHandler
	Compose *apiHandler.ComposeHandler
	View    *apiHandler.ViewHandler
	Storage *apiHandler.StorageHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, requireSession func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	r.GET("/api/v1/view", handlers.View.View)
	r.GET("/api/v1/notifications", handlers.View.Notifications)

	// Auth routes
	r.POST("/api/v1/auth/signup", handlers.Auth.SignUp)
	r.POST("/api/v1/auth/signin", handlers.Auth.SignIn)
	r.POST("/api/v1/auth/signout", handlers.Auth.SignOut)
	r.GET("/api/v1/auth/session", handlers.Auth.Session)

	// Board routes
	r.GET("/api/v1/tasks", requireSession(handlers.Task.List))
	r.POST("/api/v1/tasks", requireSession(handlers.Task.Create))
	r.POST("/api/v1/tasks/reload", requireSession(handlers.Task.Reload))
	r.PUT("/api/v1/tasks/{id}", requireSession(handlers.Task.Update))
	r.DELETE("/api/v1/tasks/{id}", requireSession(handlers.Task.Delete))

	r.GET("/api/v1/draft", requireSession(handlers.Compose.Get))
	r.PUT("/api/v1/draft", requireSession(handlers.Compose.Set))
	r.PUT("/api/v1/draft/image", requireSession(handlers.Compose.Attach))
	r.DELETE("/api/v1/draft/image", requireSession(handlers.Compose.Detach))
	r.POST("/api/v1/draft/submit", requireSession(handlers.Compose.Submit))

	r.GET("/storage/v1/object/public/{bucket}/{key:*}", handlers.Storage.Object)

	return r
}
