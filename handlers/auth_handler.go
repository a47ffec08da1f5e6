package handlers

import (
	"fmt"
	"net/http"
	"strings"

	auth "gigbounty-backend/storage/auth"

	"gigbounty-backend/models"
)

// Authenticator resolves the wallet identity behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (wallet string, err error)
}

// PermissiveAuthenticator trusts the X-Wallet-Address header without a
// signature. Development only; refused in production at startup.
type PermissiveAuthenticator struct{}

// Authenticate returns the claimed wallet address.
func (PermissiveAuthenticator) Authenticate(r *http.Request) (string, error) {
	wallet := strings.TrimSpace(r.Header.Get("X-Wallet-Address"))
	if wallet == "" {
		return "", fmt.Errorf("X-Wallet-Address header required")
	}
	return wallet, nil
}

// StrictAuthenticator requires either a session token from the
// challenge flow or a per-request wallet signature.
type StrictAuthenticator struct {
	sessions auth.SessionValidator
}

// NewStrictAuthenticator builds a strict authenticator over the session store.
func NewStrictAuthenticator(sessions auth.SessionValidator) *StrictAuthenticator {
	return &StrictAuthenticator{sessions: sessions}
}

// Authenticate resolves the wallet from a bearer session token, falling
// back to verifying X-Wallet-Signature over X-Wallet-Message.
func (a *StrictAuthenticator) Authenticate(r *http.Request) (string, error) {
	if token, ok := bearerToken(r); ok {
		sess, found := a.sessions.Lookup(token)
		if !found {
			return "", fmt.Errorf("invalid or expired session token")
		}
		return sess.Wallet, nil
	}

	wallet := strings.TrimSpace(r.Header.Get("X-Wallet-Address"))
	signature := strings.TrimSpace(r.Header.Get("X-Wallet-Signature"))
	message := r.Header.Get("X-Wallet-Message")
	if wallet == "" || signature == "" || message == "" {
		return "", fmt.Errorf("session token or wallet signature headers required")
	}
	ok, err := verifyWalletSignature(wallet, signature, message)
	if err != nil || !ok {
		return "", fmt.Errorf("wallet signature did not verify")
	}
	return wallet, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// AuthHandler runs the challenge/verify flow that issues session tokens.
type AuthHandler struct {
	*BaseHandler
	challenges *auth.ChallengeStore
	sessions   auth.SessionIssuer
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(challenges *auth.ChallengeStore, sessions auth.SessionIssuer) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(),
		challenges:  challenges,
		sessions:    sessions,
	}
}

// HandleChallenge issues a nonce for wallet verification.
// Request: {"wallet":"..."}
// Response: { "nonce": "...", "expires_at": "..."}
func (h *AuthHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.challenges == nil {
		h.sendError(w, http.StatusServiceUnavailable, "challenge store unavailable")
		return
	}
	var body models.ChallengeRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json")
		return
	}
	wallet := strings.TrimSpace(body.Wallet)
	if wallet == "" {
		h.sendError(w, http.StatusBadRequest, "wallet required")
		return
	}
	ch, err := h.challenges.Issue(wallet)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}
	h.sendSuccess(w, models.ChallengeResponse{
		Wallet:    ch.Wallet,
		Nonce:     ch.Nonce,
		ExpiresAt: ch.ExpiresAt.Unix(),
	})
}

// HandleVerify checks the signature against the nonce and issues a
// session token.
// Request: {"wallet":"...","signature":"..."}
// Response: { "token":"...","wallet":"...","expires_at":...}
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if h.challenges == nil {
		h.sendError(w, http.StatusServiceUnavailable, "challenge store unavailable")
		return
	}
	var body models.VerifyRequest
	if err := h.parseJSON(r, &body); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(body.Wallet) == "" || strings.TrimSpace(body.Signature) == "" {
		h.sendError(w, http.StatusBadRequest, "wallet and signature required")
		return
	}
	verifier := func(ch auth.Challenge, sig string) bool {
		ok, err := verifyWalletSignature(ch.Wallet, sig, strings.TrimSpace(ch.Nonce))
		if err != nil {
			return false
		}
		return ok
	}
	if !h.challenges.Verify(body.Wallet, body.Signature, verifier) {
		h.sendError(w, http.StatusForbidden, "invalid signature")
		return
	}
	sess, err := h.sessions.Issue(body.Wallet)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	h.sendSuccess(w, map[string]interface{}{
		"token":      sess.Token,
		"wallet":     sess.Wallet,
		"expires_at": sess.ExpiresAt.Unix(),
		"verified":   true,
	})
}
