package tenant

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// GetTenantID extracts the tenant_id from Fiber context locals.
func GetTenantID(c *fiber.Ctx) string {
	if tenantID, ok := c.Locals("tenant_id").(string); ok {
		return tenantID
	}
	return ""
}

// GetMemberID extracts the authenticated member identifier from JWT claims.
func GetMemberID(c *fiber.Ctx) (string, error) {
	claims, err := getClaims(c)
	if err != nil {
		return "", err
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub claim")
	}
	return sub, nil
}

// GetMemberName extracts the display name claim, falling back to the subject.
func GetMemberName(c *fiber.Ctx) string {
	claims, err := getClaims(c)
	if err != nil {
		return ""
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		return name
	}
	sub, _ := claims["sub"].(string)
	return sub
}

func getClaims(c *fiber.Ctx) (jwt.MapClaims, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return nil, errors.New("invalid token in context")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
