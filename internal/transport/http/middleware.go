package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const callerKey = "caller_id"

// TokenVerifier checks bearer tokens issued by the identity collaborator.
// This service only needs the subject claim out of them.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) Verify(token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(subject)
}

// identifyCaller attaches the authenticated user to the request when a valid
// bearer token is present. Anonymous requests pass through untouched; routes
// that need identity add requireCaller.
func (s *Server) identifyCaller(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.Next()
		return
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		c.Next()
		return
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Info("rejecting bearer token", "err", err)
		c.Next()
		return
	}

	c.Set(callerKey, userID)
	c.Next()
}

func (s *Server) requireCaller(c *gin.Context) {
	if callerID(c) == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	c.Next()
}

func callerID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(callerKey)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}
