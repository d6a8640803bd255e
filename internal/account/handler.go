package account

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
)

// Handler exposes HTTP endpoints for account operations (register / login / profile).
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest request body for the register endpoint.
type RegisterRequest struct {
	FullName string `json:"full_name"`
	Gender   string `json:"gender"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ExternalLoginRequest carries a third-party identity assertion. id_token is
// accepted for clients built against the Google Sign-In naming.
type ExternalLoginRequest struct {
	AssertionToken string `json:"assertion_token"`
	IDToken        string `json:"id_token"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type profileResponse struct {
	Message string `json:"message"`
	Profile any    `json:"profile"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload", Code: CodeMissingFields})
		return
	}
	_, err := h.svc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload", Code: CodeMissingFields})
		return
	}
	tok, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful", Token: tok})
}

func (h *Handler) LoginExternal(w http.ResponseWriter, r *http.Request) {
	var req ExternalLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid external login payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid payload", Code: CodeMissingFields})
		return
	}
	assertion := req.AssertionToken
	if assertion == "" {
		assertion = req.IDToken
	}
	if assertion == "" {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing assertion token", Code: CodeMissingFields})
		return
	}
	tok, err := h.svc.LoginWithExternalIdentity(r.Context(), assertion)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "External login successful", Token: tok})
}

// Profile must run behind token.Middleware.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := token.UserIDFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: "Access denied, no token provided"})
		return
	}
	v, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, profileResponse{Message: "success", Profile: v})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code, msg := Describe(err)
	h.logger.Debugw("request failed", "status", status, "code", code, "err", err)
	h.writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
