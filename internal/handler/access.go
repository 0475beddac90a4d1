package handler

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"aina-notebook/internal/config"
	"aina-notebook/internal/model"
	"aina-notebook/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccessGate asks for a shared password before the API can be used. It only
// keeps casual visitors out; sessions live in memory and die with the process.
type AccessGate struct {
	password    string
	cookieName  string
	ttl         time.Duration
	defaultLang model.Language
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

func NewAccessGate(cfg config.AccessConfig, defaultLang model.Language) *AccessGate {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	name := cfg.CookieName
	if name == "" {
		name = "aina_access"
	}

	return &AccessGate{
		password:    cfg.Password,
		cookieName:  name,
		ttl:         ttl,
		defaultLang: defaultLang,
		now:         time.Now,
		sessions:    make(map[string]time.Time),
	}
}

// Enabled reports whether a password is configured.
func (g *AccessGate) Enabled() bool {
	return g.password != ""
}

type accessStatus struct {
	Required bool `json:"required"`
	Granted  bool `json:"granted"`
}

// Status tells the SPA whether it has to show the password prompt.
func (g *AccessGate) Status(c *gin.Context) {
	c.JSON(http.StatusOK, accessStatus{
		Required: g.Enabled(),
		Granted:  g.granted(c),
	})
}

func (g *AccessGate) Login(c *gin.Context) {
	lang := requestLanguage(c, g.defaultLang)

	if !g.Enabled() {
		c.JSON(http.StatusOK, accessStatus{Granted: true})
		return
	}

	var req model.AccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, msgInvalidRequest, lang)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(g.password)) != 1 {
		logger.WithFields(map[string]interface{}{
			"client_ip": c.ClientIP(),
		}).Warn("Rejected access attempt")
		abortWithMessage(c, http.StatusUnauthorized, msgWrongPassword, lang)
		return
	}

	token := uuid.NewString()
	g.mu.Lock()
	g.pruneLocked()
	g.sessions[token] = g.now().Add(g.ttl)
	g.mu.Unlock()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(g.cookieName, token, int(g.ttl.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, accessStatus{Required: true, Granted: true})
}

func (g *AccessGate) Logout(c *gin.Context) {
	if token, err := c.Cookie(g.cookieName); err == nil {
		g.mu.Lock()
		delete(g.sessions, token)
		g.mu.Unlock()
	}
	c.SetCookie(g.cookieName, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// Middleware rejects requests without a live session cookie.
func (g *AccessGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.Enabled() || g.granted(c) {
			c.Next()
			return
		}
		abortWithMessage(c, http.StatusUnauthorized, msgAccessRequired, requestLanguage(c, g.defaultLang))
	}
}

func (g *AccessGate) granted(c *gin.Context) bool {
	if !g.Enabled() {
		return true
	}
	token, err := c.Cookie(g.cookieName)
	if err != nil || token == "" {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	expires, ok := g.sessions[token]
	if !ok {
		return false
	}
	if !g.now().Before(expires) {
		delete(g.sessions, token)
		return false
	}
	return true
}

func (g *AccessGate) pruneLocked() {
	now := g.now()
	for token, expires := range g.sessions {
		if !now.Before(expires) {
			delete(g.sessions, token)
		}
	}
}
