package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func buildPublicURL(baseURL, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimRight(baseURL, "/") + path
	}
	return strings.TrimRight(baseURL, "/") + "/" + path
}

func (a *App) createUserSessionToken(session UserSession) (string, error) {
	claims := jwt.MapClaims{
		"user_id": session.UserID,
		"email":   session.Email,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(userSessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyUserSessionToken(tokenString string) (*UserSession, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid user session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	var userID int64
	switch val := claims["user_id"].(type) {
	case float64:
		if val <= 0 || val != math.Trunc(val) {
			return nil, fmt.Errorf("invalid user_id claim")
		}
		userID = int64(val)
	case string:
		id, convErr := strconv.ParseInt(val, 10, 64)
		if convErr != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user_id claim")
		}
		userID = id
	default:
		return nil, fmt.Errorf("invalid user_id claim")
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("invalid user session payload")
	}
	return &UserSession{UserID: userID, Email: email}, nil
}

func (a *App) setSessionCookie(c *gin.Context, token string, maxAge int) {
	secure := strings.EqualFold(a.cfg.Env, "production")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(userCookieName, token, maxAge, "/", "", secure, true)
}

func (a *App) requireUserSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(userCookieName)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
			c.Abort()
			return
		}
		session, err := a.verifyUserSessionToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
			c.Abort()
			return
		}
		c.Set("userSession", *session)
		c.Next()
	}
}

func getUserSession(c *gin.Context) (UserSession, error) {
	value, ok := c.Get("userSession")
	if !ok {
		return UserSession{}, fmt.Errorf("missing user session")
	}
	session, ok := value.(UserSession)
	if !ok {
		return UserSession{}, fmt.Errorf("invalid user session")
	}
	return session, nil
}

func (a *App) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	bucket, ok := a.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		a.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	a.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

func (a *App) allowWrite(userID int64) bool {
	return a.checkRateLimit(fmt.Sprintf("write:%d", userID), writeRateLimitRequests, writeRateLimitWindow, time.Now())
}

func (a *App) allowShare(userID int64) bool {
	return a.checkRateLimit(fmt.Sprintf("share:%d", userID), shareRateLimitRequests, shareRateLimitWindow, time.Now())
}

// startCleanupLoop prunes rate limiter buckets and idle user state on every tick.
func (a *App) startCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
				a.sweepIdleUsers(now)
			}
		}
	}()
}

// pruneRateLimiterState drops buckets older than the longest window in use.
func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()
	for key, bucket := range a.rateBuckets {
		if now.Sub(bucket.start) >= shareRateLimitWindow {
			delete(a.rateBuckets, key)
		}
	}
}

var errRateLimited = &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many requests, please slow down"}
