package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storefront-service/internal/kv"
	"storefront-service/internal/service"
	"storefront-service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminPassword = "letmein"

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	store := kv.NewMemoryStore()
	sessions := session.NewManager(store, adminPassword, 24*time.Hour, false)
	orders := service.NewOrderService(store, nil)
	chat := service.NewChatService(store)
	abandoned := service.NewAbandonedService(store, nil)
	analytics := service.NewAnalyticsService(store, orders, nil)
	content := service.NewContentService(store)
	cleanup := service.NewCleanupService(store, 50, 100, 25000)

	router := gin.New()
	handler := NewHandler(sessions, orders, chat, abandoned, analytics, content, cleanup)
	handler.SetupRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrderEndToEnd(t *testing.T) {
	router := newTestRouter()
	body := `{"paymentIntent":"pi_test_123","email":"a@b.com","amount":75.19,"currency":"USD"}`

	w := doJSON(router, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusOK, w.Code)

	var first struct {
		ID        string  `json:"id"`
		Status    string  `json:"status"`
		Amount    float64 `json:"amount"`
		Duplicate bool    `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Regexp(t, `^ORD-[0-9A-F]{8}$`, first.ID)
	assert.Equal(t, "completed", first.Status)
	assert.Equal(t, 75.19, first.Amount)
	assert.False(t, first.Duplicate)

	// The success page re-posting on refresh gets the same order back.
	w = doJSON(router, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusOK, w.Code)

	var second struct {
		ID        string `json:"id"`
		Duplicate bool   `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Duplicate)
}

func TestCreateOrderMissingIntent(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/orders", `{"email":"a@b.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func login(t *testing.T, router *gin.Engine) *http.Cookie {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/auth/login", `{"password":"`+adminPassword+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func TestAdminGate(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := login(t, router)
	w = doJSON(router, http.MethodGet, "/api/orders", "", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/auth/login", `{"password":"guess"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	router := newTestRouter()
	cookie := login(t, router)

	w := doJSON(router, http.MethodGet, "/api/auth/check", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/auth/check", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestScriptsReadIsPublicWriteIsGated(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/admin/scripts", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"scripts":[]}`, w.Body.String())

	body := `{"scripts":[{"id":"1","name":"pixel","code":"<script></script>","location":"head","enabled":true}]}`
	w = doJSON(router, http.MethodPost, "/api/admin/scripts", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := login(t, router)
	w = doJSON(router, http.MethodPost, "/api/admin/scripts", body, cookie)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/admin/scripts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pixel")
}

func TestAdminChatReadMarksRead(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/chat", `{"sessionId":"v1","sender":"user","text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// Anonymous read does not clear the unread count.
	w = doJSON(router, http.MethodGet, "/api/chat?sessionId=v1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unreadCount":1`)

	cookie := login(t, router)
	w = doJSON(router, http.MethodGet, "/api/chat?sessionId=v1", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/chat?sessionId=v1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unreadCount":0`)
}

func TestBatchDeleteEndpoint(t *testing.T) {
	router := newTestRouter()
	cookie := login(t, router)

	// Seed a few orders through the public endpoint.
	for _, pi := range []string{"pi_test_1", "pi_test_2"} {
		w := doJSON(router, http.MethodPost, "/api/orders", `{"paymentIntent":"`+pi+`","amount":10}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(router, http.MethodDelete, "/api/admin/batch-delete", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		DeletedCount int  `json:"deletedCount"`
		HasMore      bool `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.DeletedCount)
	assert.False(t, result.HasMore)
}
