package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole succeeds iff the principal holds the required role.
// Must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok || p.Role != role {
			respondError(c, http.StatusForbidden, ErrForbidden.Error())
			c.Abort()
			return
		}
		c.Next()
	}
}

// OwnerSource selects where a route expects the target-resource owner id.
type OwnerSource int

const (
	OwnerFromPath OwnerSource = iota
	OwnerFromQuery
	OwnerFromBody
)

// OwnerRef is a statically declared extraction rule: one source plus the
// field or parameter name holding the owner id.
type OwnerRef struct {
	Source OwnerSource
	Field  string
}

// OwnerFromRequest is the original path > query > body precedence for the
// given field name, for routes that accept the id in any position.
func OwnerFromRequest(field string) []OwnerRef {
	return []OwnerRef{
		{Source: OwnerFromPath, Field: field},
		{Source: OwnerFromQuery, Field: field},
		{Source: OwnerFromBody, Field: field},
	}
}

// RequireOwnership allows the request iff the extracted owner id equals the
// principal's id, or the principal is an admin. When no rule yields an id the
// policy is vacuously satisfied and the handler is expected to perform its
// own ownership check. Must run after RequireAuth.
func RequireOwnership(refs ...OwnerRef) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			respondError(c, http.StatusForbidden, ErrForbidden.Error())
			c.Abort()
			return
		}

		ownerID := extractOwnerID(c, refs)
		if ownerID == "" {
			c.Next()
			return
		}

		if ownerID == p.ID || p.IsAdmin() {
			c.Next()
			return
		}

		respondError(c, http.StatusForbidden, ErrForbidden.Error())
		c.Abort()
	}
}

func extractOwnerID(c *gin.Context, refs []OwnerRef) string {
	for _, ref := range refs {
		switch ref.Source {
		case OwnerFromPath:
			if v := c.Param(ref.Field); v != "" {
				return v
			}
		case OwnerFromQuery:
			if v := c.Query(ref.Field); v != "" {
				return v
			}
		case OwnerFromBody:
			if v := bodyField(c, ref.Field); v != "" {
				return v
			}
		}
	}
	return ""
}

// bodyField peeks a top-level string field out of a JSON body, restoring the
// body so the handler can still bind it.
func bodyField(c *gin.Context, field string) string {
	if c.Request.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var doc map[string]any
	if json.Unmarshal(raw, &doc) != nil {
		return ""
	}
	switch v := doc[field].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
