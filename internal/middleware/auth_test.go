package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wikigate/moderation-backend/internal/service"
	pkgjwt "github.com/wikigate/moderation-backend/pkg/jwt"
)

func newAuthRouter(mgr *pkgjwt.Manager, required bool, capture *service.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Auth(mgr, required))
	r.GET("/test", func(c *gin.Context) {
		*capture = GetActor(c)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAuth_AnonymousAllowed(t *testing.T) {
	mgr := pkgjwt.NewManager("test-secret", time.Hour)
	var actor service.Actor
	r := newAuthRouter(mgr, false, &actor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", nil) // sets RemoteAddr, unlike http.NewRequest
	req.Header.Set("User-Agent", "anon-browser")
	req.Header.Set("X-Anon-Token", "session-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if actor.Registered {
		t.Error("anonymous actor must not be registered")
	}
	if actor.UserAgent != "anon-browser" {
		t.Errorf("user agent not captured: %q", actor.UserAgent)
	}
	if actor.AnonToken != "session-token" {
		t.Errorf("anon token not captured: %q", actor.AnonToken)
	}
	if actor.Name == "" {
		t.Error("anonymous actor should be named after its address")
	}
}

func TestAuth_AnonymousDeniedWhenRequired(t *testing.T) {
	mgr := pkgjwt.NewManager("test-secret", time.Hour)
	var actor service.Actor
	r := newAuthRouter(mgr, true, &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	mgr := pkgjwt.NewManager("test-secret", time.Hour)
	token, err := mgr.Generate(7, "alice", true, []string{service.CapModerate})
	if err != nil {
		t.Fatal(err)
	}

	var actor service.Actor
	r := newAuthRouter(mgr, true, &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if actor.Name != "alice" || actor.ID != 7 || !actor.Registered {
		t.Errorf("claims not mapped onto actor: %+v", actor)
	}
	if !actor.Has(service.CapModerate) {
		t.Error("capabilities not mapped onto actor")
	}
}

func TestAuth_BadToken(t *testing.T) {
	mgr := pkgjwt.NewManager("test-secret", time.Hour)
	var actor service.Actor
	r := newAuthRouter(mgr, true, &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRequireCap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("actor", service.Actor{Name: "alice", Capabilities: []string{service.CapModerate}})
		c.Next()
	})
	r.Use(RequireCap(service.CapModerate))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireCap_Denied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("actor", service.Actor{Name: "alice"})
		c.Next()
	})
	r.Use(RequireCap(service.CapModerate))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}
