package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frostwillmott/applybot/pkg/models"
)

const sessionCookie = "applybot_session"

// authLogin handles GET /auth/login: it parks a state token in Redis and
// redirects the browser to the board's OAuth consent page.
func (s *Server) authLogin(c *gin.Context) {
	state := uuid.NewString()
	if err := s.states.SetOAuthState(c.Request.Context(), state, c.ClientIP()); err != nil {
		s.log.Error("failed to store oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start oauth flow"})
		return
	}

	authorize := fmt.Sprintf("%s/oauth/authorize?%s", s.board.SiteURL(), url.Values{
		"response_type": {"code"},
		"client_id":     {s.cfg.HHClientID},
		"redirect_uri":  {s.cfg.HHRedirectURI},
		"state":         {state},
	}.Encode())

	c.Redirect(http.StatusFound, authorize)
}

// authCallback handles GET /auth/callback: state check, code exchange,
// session cookie.
func (s *Server) authCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state or code"})
		return
	}

	ok, err := s.states.TakeOAuthState(c.Request.Context(), state)
	if err != nil {
		s.log.Error("failed to check oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "oauth state check failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown or expired oauth state"})
		return
	}

	token, err := s.board.ExchangeCode(c.Request.Context(), code)
	if err != nil {
		s.log.Error("token exchange failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	session, err := s.issueSession(models.DefaultUserID)
	if err != nil {
		s.log.Error("failed to issue session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
		return
	}
	c.SetCookie(sessionCookie, session, int((30 * 24 * time.Hour).Seconds()), "/", "", s.cfg.CookieSecure, true)

	s.log.Info("oauth flow completed", zap.Time("token_expires_at", token.ExpiresAt()))
	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

// issueSession signs a session cookie for the shell.
func (s *Server) issueSession(userID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
		Issuer:    "applybot",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.SessionKey))
}
