// Package auth contiene los controllers HTTP del flujo de autenticación.
// Son adaptadores finos: decodifican, delegan al servicio y serializan.
package auth

import (
	"encoding/json"
	"net/http"

	"github.com/assessly/authcore/internal/auth"
	httperrors "github.com/assessly/authcore/internal/http/errors"
	"github.com/assessly/authcore/internal/http/middlewares"
)

const maxBodyBytes = 64 << 10 // los requests de auth son chicos

type Controller struct {
	svc *auth.Service
}

func NewController(svc *auth.Service) *Controller {
	return &Controller{svc: svc}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type mfaVerifyRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Method         string `json:"method"`
	Code           string `json:"code"`
	TrustDevice    bool   `json:"trust_device"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

// Login maneja POST /v1/auth/login.
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := c.svc.Login(r.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		IP:         middlewares.GetClientIP(r.Context()),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.MFARequired {
		// 202: el login está aceptado pero incompleto.
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// VerifyMFA maneja POST /v1/auth/mfa/verify.
func (c *Controller) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := c.svc.VerifyMFA(r.Context(), auth.MFAVerifyInput{
		ChallengeToken: req.ChallengeToken,
		Method:         req.Method,
		Code:           req.Code,
		IP:             middlewares.GetClientIP(r.Context()),
		UserAgent:      r.UserAgent(),
		TrustDevice:    req.TrustDevice,
	})
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Refresh maneja POST /v1/auth/refresh.
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields)
		return
	}
	res, err := c.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Logout maneja POST /v1/auth/logout.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httperrors.WriteError(w, r, httperrors.ErrMissingFields)
		return
	}
	err := c.svc.Logout(r.Context(), req.SessionID,
		middlewares.GetClientIP(r.Context()), r.UserAgent())
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httperrors.WriteError(w, r, httperrors.ErrInvalidJSON.WithCause(err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
