package controllers

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"zako_server/middleware"
	"zako_server/models"
	"zako_server/services"
	"zako_server/utils"
)

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Zako"})
}

// MethodNotAllowed answers calls with the wrong verb on known paths.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, services.ErrMethodNotAllowed)
}

// NotFound answers paths no route knows.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, services.ErrRouteNotFound)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(e *services.Error) int {
	switch e.Kind {
	case services.KindValidation:
		if e.Code == services.CodeMethodNotAllowed {
			return http.StatusMethodNotAllowed
		}
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, err error) {
	e := services.AsError(err)
	status := statusFor(e)
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.String("code", e.Code), zap.Error(e))
	}
	utils.WriteFailure(w, status, e.Code, e.Message)
}

func writeSuccess(w http.ResponseWriter, message string, extra map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range extra {
		body[k] = v
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

// identityResolver is the slice of *services.IdentityResolver the controllers use.
type identityResolver interface {
	Resolve(ctx context.Context, sessionToken, clientID string) (models.ResolvedIdentity, error)
}

// requestIdentity gathers the request parameters and resolves the caller.
type requestIdentity struct {
	Sessions *middleware.Sessions
	Resolver identityResolver
}

func (ri requestIdentity) resolve(r *http.Request) (url.Values, models.ResolvedIdentity, error) {
	params, err := utils.ReadParams(r)
	if err != nil {
		return nil, models.ResolvedIdentity{}, invalidParams(err)
	}
	clientID := ri.Sessions.ClientID(r, params.Get(middleware.ClientIDParam))
	identity, err := ri.Resolver.Resolve(r.Context(), middleware.SessionToken(r.Context()), clientID)
	if err != nil {
		return params, models.ResolvedIdentity{}, err
	}
	return params, identity, nil
}

func invalidParams(err error) error {
	return &services.Error{Kind: services.KindValidation, Code: services.CodeInvalidParams, Message: "无效或缺失的参数.", Err: err}
}
