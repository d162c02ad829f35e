package server

import (
	"github.com/danielgtaylor/huma/v2"

	v1 "github.com/gosuda/tasktrack/internal/api/v1"
	"github.com/gosuda/tasktrack/internal/auth"
	"github.com/gosuda/tasktrack/internal/service"
)

func registerTokenRoutes(api huma.API, authSvc *auth.Service, allowIssue bool) {
	v1.RegisterTokenRoutes(api, authSvc, allowIssue)
}

func registerAPIRoutes(api huma.API, svc *service.TaskService) {
	v1.RegisterTaskRoutes(api, svc)
	v1.RegisterUserRoutes(api, svc)
}
