package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/edforge/interview/internal/adapters/signal"
	"github.com/edforge/interview/internal/auth"
	"github.com/edforge/interview/internal/config"
	"github.com/edforge/interview/internal/domain"
)

const identityKey = "identity"

// BearerAuthMiddleware resolves the connection credential before the
// websocket upgrade. Browsers cannot set headers on a WS dial, so the
// token is also accepted as a query parameter.
func BearerAuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("connection rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func operatorOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		if ok, _ := s.Get("operator").(bool); !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator session required"})
			return
		}
		c.Next()
	}
}

// SetupRouter wires the signaling endpoint and the operator monitoring API.
func SetupRouter(ctx context.Context, cfg *config.Config, verifier auth.Verifier, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("InterviewSessions", store))

	r.GET("/ws/signal", BearerAuthMiddleware(verifier), func(c *gin.Context) {
		id := c.MustGet(identityKey).(auth.Identity)
		log.Info().Str("module", "adapters.http").Str("user", string(id.UserID)).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c, id)
	})

	api := r.Group("/api")

	// Client bootstrap: connecting clients read the ICE servers and the
	// mesh cap from here instead of hardcoding them.
	api.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"iceServers":      cfg.ICEServers,
			"maxParticipants": cfg.MaxParticipants,
		})
	})

	api.POST("/operator/login", func(c *gin.Context) {
		var req struct {
			Secret string `json:"secret"`
		}
		if err := c.BindJSON(&req); err != nil || req.Secret == "" || req.Secret != cfg.OperatorSecret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator secret"})
			return
		}
		s := sessions.Default(c)
		s.Set("operator", true)
		if err := s.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	mon := api.Group("", operatorOnly())

	// Aggregate room and participant counts.
	mon.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Registry.Stats())
	})

	// Per-room participant listing.
	mon.GET("/rooms/:id", func(c *gin.Context) {
		sid := domain.SessionID(c.Param("id"))
		snap, ok := ctl.Registry.Snapshot(sid)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sessionId":        sid,
			"participantCount": len(snap),
			"participants":     snap,
		})
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
