package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const serviceRole = "service_role"

var errMissingToken = errors.New("missing bearer token")

// ServiceRoleAuth admits only requests carrying an HS256 token signed with
// secret whose role claim is service_role. An empty secret rejects everything.
func ServiceRoleAuth(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				log.Error().Str("path", r.URL.Path).Msg("auth: service role secret not configured, rejecting request")
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			if err := verifyServiceRole(parser, key, r.Header.Get("Authorization")); err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("auth: rejected service role request")
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyServiceRole(parser *jwt.Parser, key []byte, header string) error {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return errMissingToken
	}

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return err
	}
	if role, _ := claims["role"].(string); role != serviceRole {
		return errors.New("token role is not service_role")
	}
	return nil
}
