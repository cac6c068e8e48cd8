package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type resolverCtxKey struct{}

func TestOrgAuthPassesRequestContextToResolver(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotCtx context.Context
	r := gin.New()
	r.Use(OrgAuth(func(ctx context.Context, apiKey string) (uint, error) {
		gotCtx = ctx
		if apiKey != "greenco.secret" {
			return 0, errors.New("无效 Key")
		}
		return 42, nil
	}))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"org": c.GetUint(OrgContextKey)})
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req = req.WithContext(context.WithValue(req.Context(), resolverCtxKey{}, "marker"))
	req.Header.Set("X-API-Key", "greenco.secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "42") {
		t.Fatalf("resolved org must land in the gin context, got %s", w.Body.String())
	}
	// 解析回调必须拿到请求自己的 Context，不是凭空造的 Background
	if gotCtx == nil || gotCtx.Value(resolverCtxKey{}) != "marker" {
		t.Fatal("resolver must receive the request context")
	}
}

func TestOrgAuthRejectsMissingOrBadKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(OrgAuth(func(ctx context.Context, apiKey string) (uint, error) {
		return 0, errors.New("无效 Key")
	}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	// 没带 Header
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: expected 401, got %d", w.Code)
	}

	// 带了解析不了的 Key
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-API-Key", "bogus")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad key: expected 401, got %d", w.Code)
	}
}
