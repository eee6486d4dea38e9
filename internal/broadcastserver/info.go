package broadcastserver

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleIndex serves a minimal station info page. Content is
// implementation-defined per spec §6; this lists the enabled streams and
// links to /status and /current.
func (s *Server) handleIndex(c *gin.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><title>%s</title></head><body>", htmlEscape(s.station.Name))
	fmt.Fprintf(&b, "<h1>%s</h1><p>%s</p><ul>", htmlEscape(s.station.Name), htmlEscape(s.station.Description))
	for _, name := range names {
		fmt.Fprintf(&b, `<li><a href="/%s">/%s</a></li>`, name, name)
	}
	b.WriteString("</ul>")
	b.WriteString(`<p><a href="/status">/status</a> &middot; <a href="/current">/current</a> &middot; <a href="/openapi.json">/openapi.json</a></p>`)
	b.WriteString("</body></html>")

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}

func (s *Server) openAPISpec() gin.H {
	s.mu.RLock()
	paths := gin.H{}
	for name := range s.streams {
		paths["/"+name] = gin.H{
			"get": gin.H{
				"summary":   "Continuous audio stream",
				"responses": gin.H{"200": gin.H{"description": "Audio byte stream"}},
			},
		}
	}
	s.mu.RUnlock()

	paths["/status"] = gin.H{"get": gin.H{"summary": "Station and stream status", "responses": gin.H{"200": gin.H{"description": "Status JSON"}}}}
	paths["/current"] = gin.H{"get": gin.H{"summary": "Currently playing track", "responses": gin.H{"200": gin.H{"description": "Current track JSON"}}}}

	return gin.H{
		"openapi": "3.0.3",
		"info":    gin.H{"title": s.station.Name, "version": "1.0.0"},
		"paths":   paths,
	}
}

// handleOpenAPI implements GET /openapi.json.
func (s *Server) handleOpenAPI(c *gin.Context) {
	c.JSON(http.StatusOK, s.openAPISpec())
}

// handleSwagger implements GET /swagger: a minimal static page embedding
// swagger-ui against /openapi.json, so operators get interactive docs
// without the core depending on a bundled UI asset set.
func (s *Server) handleSwagger(c *gin.Context) {
	page := `<!DOCTYPE html><html><head><title>API docs</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css">
</head><body><div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
<script>window.onload = () => SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});</script>
</body></html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}
