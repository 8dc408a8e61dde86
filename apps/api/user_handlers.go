package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/idtoken"
)

// GoogleIdentity is the verified subset of a Google ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

var errEmailNotVerified = errors.New("google account email is not verified")

// validateGoogleIDToken checks the credential signature and audience against
// Google's published keys.
func (a *App) validateGoogleIDToken(ctx context.Context, credential string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, credential, a.cfg.GoogleClientID)
	if err != nil {
		return nil, err
	}
	return identityFromClaims(payload.Subject, payload.Claims)
}

func identityFromClaims(subject string, claims map[string]any) (*GoogleIdentity, error) {
	if subject == "" {
		return nil, fmt.Errorf("google token has no subject")
	}
	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("google token has no email")
	}
	// email_verified arrives as a bool, but older tokens carried a string.
	switch v := claims["email_verified"].(type) {
	case bool:
		if !v {
			return nil, errEmailNotVerified
		}
	case string:
		if !strings.EqualFold(v, "true") {
			return nil, errEmailNotVerified
		}
	default:
		return nil, errEmailNotVerified
	}

	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	return &GoogleIdentity{
		Subject: subject,
		Email:   email,
		Name:    strings.TrimSpace(name),
		Picture: strings.TrimSpace(picture),
	}, nil
}

func (a *App) googleSignInHandler(c *gin.Context) {
	var payload struct {
		Credential string `json:"credential"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Credential) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload", "message": "Google credential required"})
		return
	}

	ctx := c.Request.Context()
	identity, err := a.verifyGoogleCredential(ctx, strings.TrimSpace(payload.Credential))
	if err != nil {
		a.log.Warn("google credential rejected", "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credential", "message": "Google sign-in failed"})
		return
	}

	user, err := a.upsertGoogleUser(ctx, *identity)
	if err != nil {
		a.log.Error("failed to upsert user", "email", identity.Email, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to sign in"})
		return
	}

	if user.SeededAt == nil {
		seeded, err := a.seedUserPlaces(ctx, user.ID, seedPlaceInputs(a.gazetteer))
		if err != nil {
			// Sign-in still succeeds; the next sign-in retries the seed.
			a.log.Error("failed to seed starter places", "user_id", user.ID, "err", err)
		} else if seeded {
			a.log.Info("starter places seeded", "user_id", user.ID)
			if a.hub.Tracked(user.ID) {
				a.refreshPlaces(ctx, user.ID)
			}
		}
	}

	session := UserSession{UserID: user.ID, Email: user.Email}
	token, err := a.createUserSessionToken(session)
	if err != nil {
		a.log.Error("failed to create user session token", "user_id", user.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to create session"})
		return
	}
	a.setSessionCookie(c, token, int(userSessionDuration.Seconds()))

	a.log.Info("user signed in", "user_id", user.ID)
	c.JSON(http.StatusOK, gin.H{
		"userId":      user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"avatarUrl":   user.AvatarURL,
	})
}

// userLogoutHandler clears this browser's cookie only. The place store and
// route selection are shared with the user's other sessions and are released
// by the idle sweep.
func (a *App) userLogoutHandler(c *gin.Context) {
	a.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *App) userSessionHandler(c *gin.Context) {
	token, err := c.Cookie(userCookieName)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}

	session, err := a.verifyUserSessionToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "User session required"})
		return
	}

	c.JSON(http.StatusOK, session)
}
