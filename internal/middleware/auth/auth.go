package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimEntity names the claim that scopes a token to one entity.
const ClaimEntity = "empresa_id"

type contextKey string

const entityKey contextKey = "auth_entity_id"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("token not valid for this entity")
)

// Verifier checks HS256 bearer tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Verify parses the token and returns the entity claim, empty when absent.
func (v *Verifier) Verify(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return entityFromClaims(claims), nil
}

// entityFromClaims accepts the entity id as a string or a JSON number.
func entityFromClaims(claims jwt.MapClaims) string {
	switch v := claims[ClaimEntity].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Issue signs a token for entityID that expires after ttl. An empty
// entityID issues an unscoped token.
func (v *Verifier) Issue(entityID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if entityID != "" {
		claims[ClaimEntity] = entityID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token. The token's
// entity claim is stored in the context; a request naming a different
// entity in entityParams is refused.
func (v *Verifier) Middleware(entityParams []string, onFailure func(http.ResponseWriter, *http.Request, int, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="agfdash"`)
				onFailure(w, r, http.StatusUnauthorized, ErrMissingToken)
				return
			}
			entity, err := v.Verify(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="agfdash", error="invalid_token"`)
				onFailure(w, r, http.StatusUnauthorized, err)
				return
			}
			if entity != "" {
				for _, p := range entityParams {
					if q := strings.TrimSpace(r.URL.Query().Get(p)); q != "" && q != entity {
						onFailure(w, r, http.StatusForbidden, ErrForbidden)
						return
					}
				}
				r = r.WithContext(context.WithValue(r.Context(), entityKey, entity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// EntityFromContext returns the entity claim of the request's token.
func EntityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(entityKey).(string)
	return id, ok && id != ""
}
