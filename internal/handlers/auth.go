package handlers

import (
	"net/http"

	"github.com/AnshRaj112/serenify-auth/internal/response"
	"github.com/AnshRaj112/serenify-auth/internal/services"
)

type googleRequest struct {
	Code string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

// Signup creates an account and signs it in. The account stays unverified
// until the emailed link is redeemed.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupInput
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.Signup(r.Context(), requestMeta(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusCreated, "User created successfully", res)
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req services.SigninInput
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.Signin(r.Context(), requestMeta(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Login successful", res)
}

// GoogleAuth accepts the authorization code as ?code= (redirect callback)
// or as a JSON body.
func (h *Handler) GoogleAuth(w http.ResponseWriter, r *http.Request) {
	req := googleRequest{Code: r.URL.Query().Get("code")}
	if r.Method == http.MethodPost && req.Code == "" {
		if err := decode(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	res, err := h.auth.GoogleAuth(r.Context(), requestMeta(r), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Google authentication successful", res)
}

func (h *Handler) GoogleAuthURL(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.GoogleAuthURL()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Google authorization URL", res)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.RefreshToken(r.Context(), requestMeta(r), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Token refreshed successfully", res)
}

// Logout always succeeds; a malformed body is treated as no token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decode(w, r, &req)
	h.auth.Logout(r.Context(), requestMeta(r), req.RefreshToken)
	response.OK(w, http.StatusOK, "Logout successful", nil)
}

func (h *Handler) SendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.SendVerificationEmail(r.Context(), requestMeta(r), userID); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Verification email sent successfully", nil)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	req := tokenRequest{Token: r.URL.Query().Get("token")}
	if req.Token == "" {
		if err := decode(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.auth.VerifyEmail(r.Context(), requestMeta(r), req.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Email verified successfully", nil)
}

// ForgotPassword answers with the same message whether or not the email
// belongs to an account.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), requestMeta(r), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Password reset email sent successfully", nil)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordInput
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), requestMeta(r), req); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Password reset successfully", nil)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req services.ChangePasswordInput
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), requestMeta(r), userID, req); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, http.StatusOK, "Password changed successfully", nil)
}
