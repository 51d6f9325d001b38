package account

import (
	"context"
	"net/http"

	"github.com/scholaris/school-gateway/internal/gateway"
	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/types"
)

// Handler serves the auth resource: login, register, logout, me and refresh
type Handler struct {
	service    *Service
	cookieName string
}

// NewHandler creates the auth resource handler
func NewHandler(service *Service, cfg *config.AuthConfig) *Handler {
	cookieName := cfg.SessionCookie
	if cookieName == "" {
		cookieName = "session_id"
	}
	return &Handler{service: service, cookieName: cookieName}
}

// Handle dispatches on the route action
func (h *Handler) Handle(ctx context.Context, w http.ResponseWriter, call *gateway.Call) {
	switch call.Action {
	case "login":
		h.login(ctx, w, call)
	case "register":
		h.register(ctx, w, call)
	case "logout":
		h.logout(ctx, w, call)
	case "me":
		h.me(w, call)
	case "refresh":
		h.refresh(w, call)
	default:
		gateway.WriteError(w, types.NewNotFoundError(types.ErrCodeNotFound, "resource not found"))
	}
}

func (h *Handler) login(ctx context.Context, w http.ResponseWriter, call *gateway.Call) {
	if call.Method != http.MethodPost {
		gateway.MethodNotAllowed(w, http.MethodPost)
		return
	}

	login, err := h.service.Login(ctx, credentialsFrom(call.Input))
	if err != nil {
		gateway.WriteError(w, types.AsGatewayError(err))
		return
	}

	response := map[string]interface{}{
		"token": login.Token,
	}
	if login.Session != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookieName,
			Value:    login.Session.ID,
			Path:     "/",
			Expires:  login.Session.ExpiresAt,
			HttpOnly: true,
			Secure:   call.Request.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		response["session_expires_at"] = login.Session.ExpiresAt
	}

	gateway.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) register(ctx context.Context, w http.ResponseWriter, call *gateway.Call) {
	if call.Method != http.MethodPost {
		gateway.MethodNotAllowed(w, http.MethodPost)
		return
	}

	user, err := h.service.Register(ctx, credentialsFrom(call.Input))
	if err != nil {
		gateway.WriteError(w, types.AsGatewayError(err))
		return
	}

	gateway.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (h *Handler) logout(ctx context.Context, w http.ResponseWriter, call *gateway.Call) {
	if call.Method != http.MethodPost {
		gateway.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var sessionID string
	if cookie, err := call.Request.Cookie(h.cookieName); err == nil {
		sessionID = cookie.Value
	}

	if err := h.service.Logout(ctx, call.Principal, sessionID); err != nil {
		gateway.WriteError(w, types.AsGatewayError(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   call.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{"logged_out": true})
}

func (h *Handler) me(w http.ResponseWriter, call *gateway.Call) {
	if call.Method != http.MethodGet {
		gateway.MethodNotAllowed(w, http.MethodGet)
		return
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{"principal": call.Principal})
}

func (h *Handler) refresh(w http.ResponseWriter, call *gateway.Call) {
	if call.Method != http.MethodPost {
		gateway.MethodNotAllowed(w, http.MethodPost)
		return
	}

	token, err := h.service.Refresh(call.Principal)
	if err != nil {
		gateway.WriteError(w, types.AsGatewayError(err))
		return
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{"token": token})
}

func credentialsFrom(input map[string]interface{}) types.Credentials {
	username, _ := input["username"].(string)
	password, _ := input["password"].(string)
	return types.Credentials{Username: username, Password: password}
}
