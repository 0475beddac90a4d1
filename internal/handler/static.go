package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// SPA serves the built frontend. Paths that are not files fall back to
// index.html so client-side routes survive a reload; API paths get a 404.
type SPA struct {
	root string
}

func NewSPA(root string) *SPA {
	return &SPA{root: root}
}

// Available reports whether the build directory holds an index.html.
func (s *SPA) Available() bool {
	info, err := os.Stat(filepath.Join(s.root, "index.html"))
	return err == nil && !info.IsDir()
}

func (s *SPA) Handle(c *gin.Context) {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/") || p == "/api" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + p)
	file := filepath.Join(s.root, filepath.FromSlash(clean))
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		c.File(file)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.File(filepath.Join(s.root, "index.html"))
}
