package server

import (
	"errors"
	"net/http"

	playgroundValidator "github.com/go-playground/validator/v10"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	type Registration struct {
		Email           string `json:"email" validate:"email"`
		Username        string `json:"username" validate:"required"`
		DisplayName     string `json:"displayName"`
		Password        string `json:"password" validate:"eqfield=ConfirmPassword,min=6"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	var registration Registration
	if !h.decode(w, r, &registration) {
		return
	}

	if err := h.validate.Struct(registration); err != nil {
		var validateErrs playgroundValidator.ValidationErrors
		if !errors.As(err, &validateErrs) {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		// sends back 400 with the form field errors
		fieldErrors := make(map[string]string, len(validateErrs))
		for _, e := range validateErrs {
			fieldErrors[e.Field()] = e.Tag()
		}
		w.WriteHeader(http.StatusBadRequest)
		h.writeJSON(w, fieldErrors)
		return
	}

	displayName := registration.DisplayName
	if displayName == "" {
		displayName = registration.Username
	}

	user, err := h.store.CreateAccount(r.Context(), registration.Email, registration.Username, displayName, registration.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cookie, err := h.signer.CreateToken(false, user.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &cookie)
	h.writeJSON(w, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var login Login
	if !h.decode(w, r, &login) {
		return
	}

	user, err := h.store.Authenticate(r.Context(), login.Email, login.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	cookie, err := h.signer.CreateToken(r.URL.Query().Get("rememberMe") == "true", user.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &cookie)
	h.writeJSON(w, user)
}
