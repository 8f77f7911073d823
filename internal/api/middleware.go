package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"panel-wallet/internal/model"
)

// Actor headers set by the gateway in front of the API.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "actor"

// RequestLogger logs every request after it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Msg("HTTP request")
	}
}

// Recovery turns a panic into a 500 reply.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Msg("Panic recovered")
				ServerError(c)
			}
		}()
		c.Next()
	}
}

// ActorMiddleware reads the acting principal from the request headers.
// Requests without an actor id act as the system.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := model.SystemActor()

		if raw := c.GetHeader(HeaderActorID); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				Error(c, http.StatusUnauthorized, codeUnauthorized, "invalid "+HeaderActorID)
				return
			}
			role := model.Role(c.GetHeader(HeaderActorRole))
			if role == "" {
				role = model.RoleUser
			}
			actor = model.NewActor(id, role)
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireStaff admits only admin and staff actors.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).IsStaff() {
			Error(c, http.StatusForbidden, codeForbidden, "staff only")
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) model.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(model.Actor); ok {
			return a
		}
	}
	return model.SystemActor()
}
