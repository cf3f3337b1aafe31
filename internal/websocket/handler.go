package websocket

import (
	"net/http"

	"duet-chat/internal/middleware"
	"duet-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

func (g *Gateway) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
				return true
			}
			return lo.Contains(g.cfg.AllowedOrigins, origin)
		},
	}
}

// Handle authenticates the handshake and upgrades it. An unauthenticated
// request is answered with 401 before any websocket frame exists.
func (g *Gateway) Handle(c *gin.Context) {
	credential := middleware.ExtractCredential(c.Request, g.cfg.CookieName)
	userID, err := g.auth.Authenticate(c.Request.Context(), credential)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	upgrader := g.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		g.log.Error("websocket upgrade failed", userID, "", err)
		return
	}

	if _, err := g.attach(conn, userID); err != nil {
		g.log.Warn("websocket rejected", userID, "", zap.Error(err))
	}
}
