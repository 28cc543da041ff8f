package api

import (
	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

const profileKey = "profile"

// authenticate resolves the Authorization header when one is sent. A bad
// token is rejected outright; no header means a guest.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token, ok := auth.ParseAuthorization(header)
		if !ok {
			h.fail(c, apperr.New("api.authenticate", apperr.ErrUnauthorized, "malformed Authorization header"))
			return
		}
		profile, err := h.svc.Auth.Resolve(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(profileKey, profile)
		c.Next()
	}
}

func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentProfile(c) == nil {
			h.fail(c, apperr.New("api", apperr.ErrUnauthorized, "authentication required"))
			return
		}
		c.Next()
	}
}

// require admits only authenticated users whose role grants perm.
func (h *Handler) require(perm models.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile := currentProfile(c)
		if profile == nil {
			h.fail(c, apperr.New("api", apperr.ErrUnauthorized, "authentication required"))
			return
		}
		if !profile.Role.Allows(perm) {
			h.fail(c, apperr.New("api", apperr.ErrForbidden, "your role does not allow this action"))
			return
		}
		c.Next()
	}
}

func currentProfile(c *gin.Context) *models.Profile {
	v, ok := c.Get(profileKey)
	if !ok {
		return nil
	}
	profile, _ := v.(*models.Profile)
	return profile
}

// identity addresses the caller's cart: the user when authenticated, the
// Guest-Token header otherwise.
func identity(c *gin.Context) models.Identity {
	if profile := currentProfile(c); profile != nil {
		return models.Identity{UserID: profile.UserID}
	}
	return models.Identity{GuestToken: c.GetHeader(auth.GuestTokenHeader)}
}

// guestIdentity is identity, minting a guest token for anonymous callers
// that have none. The token is echoed in the response header.
func guestIdentity(c *gin.Context) models.Identity {
	id := identity(c)
	if id.IsZero() {
		id.GuestToken = auth.NewGuestToken()
	}
	if !id.IsUser() {
		c.Header(auth.GuestTokenHeader, id.GuestToken)
	}
	return id
}
