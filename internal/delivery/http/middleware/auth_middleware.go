package middleware

import (
	"context"
	"net/http"

	"storefront-backend/internal/domain"
	"storefront-backend/pkg/logger"
	"storefront-backend/pkg/utils"
)

// AuthMiddleware accepts a Bearer token or the accessToken cookie. Tokens are
// issued elsewhere; only the claims are trusted here, no account lookup is made.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := utils.ExtractClaims(r)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: "+err.Error())
			return
		}

		user := &domain.User{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  claims.Role,
		}

		ctx := context.WithValue(r.Context(), domain.UserContextKey, user)
		userCapture(w, user)

		// Tag the request logger so admin mutations are attributable.
		userLogger := logger.WithUserID(*logger.WithContext(ctx), user.ID)
		ctx = logger.NewContext(ctx, &userLogger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
