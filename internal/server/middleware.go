package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type userIDKeyType struct{}

// userExistsCacheTTL bounds how long a deleted account keeps passing the
// middleware.
const userExistsCacheTTL = 15 * time.Minute

// UserVerifier authenticates the JWT cookie, checks the user still
// exists (cached), renews the cookie periodically and passes the user id
// down in the request context.
func (h *Handler) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie("JWT")
		if err != nil {
			h.sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		userToken, err := h.signer.VerifyToken(jwtCookie.Value)
		if err != nil {
			h.sugar.Debug(err)
			http.Error(w, "Couldn't verify JWT", http.StatusBadRequest)
			return
		}

		if time.Now().UTC().After(userToken.ExpiresAt.UTC()) {
			http.Error(w, "Login expired", http.StatusUnauthorized)
			return
		}

		key := fmt.Sprintf("user_exists:%d", userToken.UserID)
		userFound := false

		value, err := h.cache.Get(key)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		if value == "" { // user isn't cached
			userFound, err = h.store.UserExists(r.Context(), userToken.UserID)
			if err != nil {
				h.sugar.Error(err)
				http.Error(w, "", http.StatusInternalServerError)
				return
			}
			if userFound {
				if err := h.cache.Set(key, "y", userExistsCacheTTL); err != nil {
					h.sugar.Error(err)
					http.Error(w, "", http.StatusInternalServerError)
					return
				}
			}
		} else {
			userFound = true
		}

		// the account is gone but the client kept the cookie
		if !userFound {
			http.SetCookie(w, &http.Cookie{
				Name:     "JWT",
				Value:    "",
				Path:     "/",
				Expires:  time.Unix(0, 0),
				HttpOnly: true,
			})
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		if time.Now().UTC().Sub(userToken.IssuedAt.Time) >= 15*time.Minute {
			updatedCookie, err := h.signer.CreateToken(userToken.Remember, userToken.UserID)
			if err != nil {
				h.sugar.Error(err)
				http.Error(w, "Couldn't renew cookie", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &updatedCookie)
		}

		ctx := context.WithValue(r.Context(), userIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
