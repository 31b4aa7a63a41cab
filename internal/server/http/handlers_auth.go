package http

import (
	"net/http"
	"time"

	"taskhive/internal/apperr"
	"taskhive/internal/user"
)

type signInRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPairView struct {
	User         *userView `json:"user,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *Handlers) googleCallback(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	u, pair, err := h.auth.SignIn(r.Context(), req.IDToken)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	uv := viewUser(u)
	respondData(w, http.StatusOK, tokenPairView{
		User:         &uv,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

func (h *Handlers) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, tokenPairView{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), currentUserID(r.Context())); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondNoContent(w)
}

func (h *Handlers) jwks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.auth.JWKS())
}

func (h *Handlers) getMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), currentUserID(r.Context()))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewUser(u))
}

type updateMeRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=100"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,url"`
	Timezone    *string `json:"timezone" validate:"omitempty,min=1,max=64"`
}

func (h *Handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			respondError(w, r, h.logger, apperr.Validation("unknown timezone"))
			return
		}
	}

	u, err := h.users.UpdateProfile(r.Context(), currentUserID(r.Context()), user.ProfileUpdate{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Timezone:    req.Timezone,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewUser(u))
}

func (h *Handlers) getLimits(w http.ResponseWriter, r *http.Request) {
	claims, _ := currentClaims(r.Context())
	limits, err := h.tasks.EffectiveLimits(r.Context(), claims.UserID, user.Tier(claims.Tier))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondData(w, http.StatusOK, viewLimits(limits))
}
