package middleware

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"shipping-metrics-api/configs"
	"shipping-metrics-api/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
)

// TokenVerifier validates a bearer token and returns its claims. The
// production implementation verifies RS256 signatures against the
// identity provider's published key set.
type TokenVerifier interface {
	Verify(tokenString string) (jwt.MapClaims, error)
}

// JWKSVerifier fetches the provider's JWKS document over HTTPS and
// caches it; signing keys rotate rarely, so a bounded staleness window
// is fine.
type JWKSVerifier struct {
	domain     string
	audience   string
	httpClient *http.Client
	keyCache   *gocache.Cache
}

func NewJWKSVerifier(cfg *configs.Config) *JWKSVerifier {
	return &JWKSVerifier{
		domain:     cfg.IdentityDomain,
		audience:   cfg.IdentityAudience,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		keyCache:   gocache.New(cfg.JWKSCacheTTL, cfg.JWKSCacheTTL),
	}
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

const jwksCacheKey = "jwks"

func (v *JWKSVerifier) signingKey(kid string) (*rsa.PublicKey, error) {
	var doc *jwksDocument

	if cached, found := v.keyCache.Get(jwksCacheKey); found {
		doc = cached.(*jwksDocument)
	} else {
		resp, err := v.httpClient.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", v.domain))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
		}
		defer resp.Body.Close()

		doc = &jwksDocument{}
		if err := json.NewDecoder(resp.Body).Decode(doc); err != nil {
			return nil, fmt.Errorf("failed to decode JWKS: %w", err)
		}
		v.keyCache.SetDefault(jwksCacheKey, doc)
	}

	for _, key := range doc.Keys {
		if key.Kid != kid || key.Kty != "RSA" {
			continue
		}

		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, fmt.Errorf("invalid JWKS modulus: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, fmt.Errorf("invalid JWKS exponent: %w", err)
		}

		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}, nil
	}

	return nil, errors.New("unable to find a signing key for kid " + kid)
}

func (v *JWKSVerifier) Verify(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no key id")
		}
		return v.signingKey(kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(fmt.Sprintf("https://%s/", v.domain)),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// AuthMiddleware verifies the Authorization bearer token and stores the
// subject and user-type claim in the request context.
func AuthMiddleware(verifier TokenVerifier, userTypeClaim string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization token provided"})
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		userType, _ := claims[userTypeClaim].(string)

		c.Set("user_id", sub)
		c.Set("user_type", userType)

		c.Next()
	}
}

// RequireUserType gates a route on the user-type claim ("client" or
// "manager").
func RequireUserType(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userType := c.GetString("user_type")
		if userType != required {
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Access Denied",
				"message":   fmt.Sprintf("This endpoint requires %s type user", required),
				"your_type": userType,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimitByIP throttles unauthenticated endpoints (registration) per
// source address.
func RateLimitByIP(counters *cache.CounterCache, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:ip:%s:%d", c.ClientIP(), time.Now().Unix()/int64(window.Seconds()))

		count, err := counters.Increment(c.Request.Context(), key, window)
		if err != nil {
			// Counter backend down; let the request through.
			c.Next()
			return
		}

		if count > int64(limit) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many requests. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimitByUser throttles authenticated traffic per user per hour.
func RateLimitByUser(counters *cache.CounterCache, limitPerHour int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			c.Abort()
			return
		}

		key := fmt.Sprintf("rate_limit:user:%s:%s", userID, time.Now().Format("2006-01-02-15"))

		count, err := counters.Increment(c.Request.Context(), key, time.Hour)
		if err != nil {
			c.Next()
			return
		}

		if count > int64(limitPerHour) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     "Rate limit exceeded",
				"limit":     limitPerHour,
				"remaining": 0,
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limitPerHour))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(limitPerHour)-count))

		c.Next()
	}
}
