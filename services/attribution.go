package services

import (
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"affiliate-payout-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// AttributionTTL is the referral attribution window
const AttributionTTL = 7 * 24 * time.Hour

// AttributionCookie is the cookie carrying the signed attribution token
const AttributionCookie = "ref_attribution"

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// NormalizeCode uppercases and validates a referral code
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codePattern.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// AttributionClaims is the payload of the signed attribution cookie. Campaign
// fields ride along and may be refreshed on later touches; Code never is.
type AttributionClaims struct {
	Code        string `json:"code"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	jwt.RegisteredClaims
}

type AttributionService struct {
	DB            *gorm.DB
	Secret        []byte
	StorefrontURL string
}

func NewAttributionService(db *gorm.DB, secret, storefrontURL string) *AttributionService {
	return &AttributionService{DB: db, Secret: []byte(secret), StorefrontURL: storefrontURL}
}

// SignToken mints the attribution token for a normalized code
func (s *AttributionService) SignToken(code, utmSource, utmMedium, utmCampaign string, now time.Time) (string, error) {
	claims := &AttributionClaims{
		Code:        code,
		UTMSource:   utmSource,
		UTMMedium:   utmMedium,
		UTMCampaign: utmCampaign,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   code,
			ExpiresAt: jwt.NewNumericDate(now.Add(AttributionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Minute)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

// ParseToken verifies a token and returns its claims, or an error for
// expired/tampered/missing tokens.
func (s *AttributionService) ParseToken(tokenStr string) (*AttributionClaims, error) {
	if tokenStr == "" {
		return nil, errors.New("empty attribution token")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	tok, err := parser.ParseWithClaims(tokenStr, &AttributionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*AttributionClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid attribution token")
	}
	return claims, nil
}

// Resolve handles GET /r/:code — the vanity referral link. It validates the
// code, checks the affiliate is attribution-eligible, and sets the signed
// cookie. First-touch wins: an existing unexpired token keeps its code and
// only the campaign metadata is refreshed. The visitor is redirected to the
// storefront no matter what; a bad code is never an error page.
func (s *AttributionService) Resolve(c *fiber.Ctx) error {
	now := time.Now()

	code, err := NormalizeCode(c.Params("code"))
	if err != nil {
		return c.Redirect(s.StorefrontURL, fiber.StatusFound)
	}

	var aff models.Affiliate
	if err := s.DB.Where("code = ?", code).First(&aff).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[ATTRIBUTION] lookup failed for code %s: %v", code, err)
		}
		return c.Redirect(s.StorefrontURL, fiber.StatusFound)
	}
	if !aff.AttributionEligible() {
		return c.Redirect(s.StorefrontURL, fiber.StatusFound)
	}

	utmSource := c.Query("utm_source")
	utmMedium := c.Query("utm_medium")
	utmCampaign := c.Query("utm_campaign")

	// First-touch lock: keep the code from a still-valid token
	if existing, err := s.ParseToken(c.Cookies(AttributionCookie)); err == nil && existing.Code != "" {
		code = existing.Code
		if utmSource == "" {
			utmSource = existing.UTMSource
		}
		if utmMedium == "" {
			utmMedium = existing.UTMMedium
		}
		if utmCampaign == "" {
			utmCampaign = existing.UTMCampaign
		}
	}

	token, err := s.SignToken(code, utmSource, utmMedium, utmCampaign, now)
	if err != nil {
		log.Printf("[ATTRIBUTION] failed to sign token for code %s: %v", code, err)
		return c.Redirect(s.StorefrontURL, fiber.StatusFound)
	}

	c.Cookie(&fiber.Cookie{
		Name:     AttributionCookie,
		Value:    token,
		Expires:  now.Add(AttributionTTL),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})
	return c.Redirect(s.StorefrontURL, fiber.StatusFound)
}

// ResolveForCheckout picks the attribution for an order being created: the
// locked cookie code wins over a checkout-entered code, and whichever code is
// chosen gets re-validated against current affiliate state. Any failure means
// no attribution — the order proceeds without one, never an error.
func (s *AttributionService) ResolveForCheckout(cookieToken, explicitCode string) *models.Affiliate {
	code := ""
	if claims, err := s.ParseToken(cookieToken); err == nil {
		code = claims.Code
	}
	if code == "" && explicitCode != "" {
		if normalized, err := NormalizeCode(explicitCode); err == nil {
			code = normalized
		}
	}
	if code == "" {
		return nil
	}

	var aff models.Affiliate
	if err := s.DB.Where("code = ?", code).First(&aff).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[ATTRIBUTION] checkout lookup failed for code %s: %v", code, err)
		}
		return nil
	}
	if !aff.AttributionEligible() {
		return nil
	}
	return &aff
}
