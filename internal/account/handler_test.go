package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/school-gateway/internal/gateway"
	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/types"
)

func call(method, action string, input map[string]interface{}, principal types.Principal) *gateway.Call {
	return &gateway.Call{
		Action:    action,
		Method:    method,
		Input:     input,
		Principal: principal,
		Request:   httptest.NewRequest(method, "/api/auth/"+action, nil),
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHandler_LoginSetsSessionCookie(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "mr.bello", "correct horse", true, types.RoleTeacher)
	h := NewHandler(f.service, &config.AuthConfig{SessionCookie: "sid"})

	rr := httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodPost, "login",
		map[string]interface{}{"username": "mr.bello", "password": "correct horse"}, types.Principal{}))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	token, ok := body["token"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, token["access_token"])
	assert.Equal(t, "Bearer", token["token_type"])

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	_, err := f.sessions.Get(context.Background(), cookies[0].Value)
	assert.NoError(t, err)
}

func TestHandler_LoginRejected(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service, &config.AuthConfig{})

	rr := httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodPost, "login",
		map[string]interface{}{"username": "nobody", "password": "nothing"}, types.Principal{}))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, ErrCodeInvalidCredentials, decode(t, rr)["code"])
	assert.Empty(t, rr.Result().Cookies())
}

func TestHandler_MethodAndAction(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service, &config.AuthConfig{})

	rr := httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodGet, "login", nil, types.Principal{}))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))

	rr = httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodGet, "nope", nil, types.Principal{}))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_RegisterMeRefresh(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.service, &config.AuthConfig{})

	rr := httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodPost, "register",
		map[string]interface{}{"username": "new.parent", "password": "long enough"}, types.Principal{}))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password_hash")

	principal := types.NewPrincipal(5, "new.parent")

	rr = httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodGet, "me", nil, principal))
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode(t, rr)["principal"].(map[string]interface{})
	assert.Equal(t, "new.parent", me["username"])

	rr = httptest.NewRecorder()
	h.Handle(context.Background(), rr, call(http.MethodPost, "refresh", nil, principal))
	require.Equal(t, http.StatusOK, rr.Code)
	token := decode(t, rr)["token"].(map[string]interface{})

	verified, err := f.codec.Verify(token["access_token"].(string), f.service.now())
	require.NoError(t, err)
	assert.Equal(t, int64(5), verified.ID)
}

func TestHandler_LogoutClearsCookie(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "mr.bello", "correct horse", true)
	h := NewHandler(f.service, &config.AuthConfig{SessionCookie: "sid"})

	login, err := f.service.Login(context.Background(), types.Credentials{Username: "mr.bello", Password: "correct horse"})
	require.NoError(t, err)

	c := call(http.MethodPost, "logout", nil, login.Session.Principal)
	c.Request.AddCookie(&http.Cookie{Name: "sid", Value: login.Session.ID})

	rr := httptest.NewRecorder()
	h.Handle(context.Background(), rr, c)

	require.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	_, err = f.sessions.Get(context.Background(), login.Session.ID)
	assert.Error(t, err)
}
