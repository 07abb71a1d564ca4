// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"net/http"

	"github.com/tomtom215/threadline/internal/models"
)

// Signup creates an account and signs the new user in.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.accounts.Signup(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	setAuthCookie(w, r, resp)
	respondData(w, http.StatusCreated, resp, models.Metadata{})
}

// Login exchanges credentials for a token, returned in the body and as an
// HTTP-only cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.accounts.Login(r.Context(), req.Username, req.Password, r.RemoteAddr)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	setAuthCookie(w, r, resp)
	respondData(w, http.StatusOK, resp, models.Metadata{})
}

func setAuthCookie(w http.ResponseWriter, r *http.Request, resp *models.LoginResponse) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    resp.Token,
		Path:     "/",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
