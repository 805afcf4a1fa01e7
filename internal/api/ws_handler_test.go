package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWsHandler_Authenticate(t *testing.T) {
	svc := newTestAuthService(t)
	h := NewWsHandler(nil, svc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	pair, err := svc.GenerateTokenPair(42, false)
	require.NoError(t, err)
	gated, err := svc.GenerateTokenPair(43, true)
	require.NoError(t, err)

	userID, err := h.authenticate([]byte(`{"type":"auth","token":"` + pair.AccessToken + `"}`))
	require.NoError(t, err)
	assert.Equal(t, uint(42), userID)

	cases := map[string]struct {
		message string
		reason  string
	}{
		"not json":       {`hello`, "invalid auth payload"},
		"wrong type":     {`{"type":"ping","token":"x"}`, "auth required"},
		"garbage token":  {`{"type":"auth","token":"x.y.z"}`, "unauthorized"},
		"refresh token":  {`{"type":"auth","token":"` + pair.RefreshToken + `"}`, "access token required"},
		"must change pw": {`{"type":"auth","token":"` + gated.AccessToken + `"}`, "password change required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.authenticate([]byte(tc.message))
			var authErr *wsAuthError
			require.True(t, errors.As(err, &authErr), "got %v", err)
			assert.Equal(t, tc.reason, authErr.reason)
		})
	}
}

func TestWsHandler_ClosesOnBadAuth(t *testing.T) {
	svc := newTestAuthService(t)
	h := NewWsHandler(nil, svc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	router := gin.New()
	router.GET("/v1/ws", h.HandleConnection)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth","token":"nope"}`)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	assert.Equal(t, "unauthorized", closeErr.Text)
}

func TestWsHandler_CheckOrigin(t *testing.T) {
	sameOrigin := NewWsHandler(nil, nil, slog.Default(), nil)
	listed := NewWsHandler(nil, nil, slog.Default(), []string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/v1/ws", nil)
	assert.True(t, sameOrigin.checkOrigin(req), "no origin header")

	req.Header.Set("Origin", "https://api.example.com")
	assert.True(t, sameOrigin.checkOrigin(req))
	assert.False(t, listed.checkOrigin(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.False(t, sameOrigin.checkOrigin(req))
	assert.True(t, listed.checkOrigin(req))
}
