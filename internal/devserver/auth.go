package devserver

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/MrEthical07/lockr/internal/rate"
)

const refreshTokenBytes = 32

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r credentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 256)),
	)
}

type mfaRequest struct {
	UserID     string `json:"userId"`
	Token      string `json:"token"`
	BackupCode string `json:"backupCode"`
}

func (r mfaRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUID),
		validation.Field(&r.Token, validation.By(exactlyOneOf(r.BackupCode))),
	)
}

// exactlyOneOf passes when exactly one of the validated value and other is
// non-empty.
func exactlyOneOf(other string) validation.RuleFunc {
	return func(value interface{}) error {
		v, _ := value.(string)
		if (v == "") == (other == "") {
			return errors.New("exactly one of token or backupCode is required")
		}
		return nil
	}
}

type registerResponse struct {
	UserID     string `json:"userId"`
	QRCode     string `json:"qrCode,omitempty"`
	OTPAuthURL string `json:"otpAuthUrl"`
	Secret     string `json:"secret"`
}

type loginResponse struct {
	MFARequired bool   `json:"mfaRequired"`
	UserID      string `json:"userId"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type profile struct {
	ID                   string `json:"id"`
	Email                string `json:"email"`
	Role                 string `json:"role"`
	MFAEnabled           bool   `json:"mfaEnabled"`
	BackupCodesRemaining int    `json:"backupCodesRemaining"`
	LastBackupRotation   string `json:"lastBackupRotation,omitempty"`
	CreatedAt            string `json:"createdAt,omitempty"`
	LastLoginAt          string `json:"lastLoginAt,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := hashPassword(req.Password, s.cfg.Password)
	if err != nil {
		s.internalError(w, r, "password hashing failed", err)
		return
	}
	secret, err := newTOTPSecret()
	if err != nil {
		s.internalError(w, r, "totp secret generation failed", err)
		return
	}

	u := &userRecord{
		Email:        req.Email,
		PasswordHash: hash,
		TOTPSecret:   secret,
		Role:         "user",
		CreatedAt:    s.now(),
	}
	if err := s.store.createUser(r.Context(), u); err != nil {
		if errors.Is(err, errEmailTaken) {
			writeError(w, http.StatusConflict, "Email already registered")
			return
		}
		s.internalError(w, r, "user creation failed", err)
		return
	}

	uri := provisionURI(s.cfg.TOTPIssuer, u.Email, secret)
	resp := registerResponse{UserID: u.ID, OTPAuthURL: uri, Secret: secret}
	if png, err := qrcode.Encode(uri, qrcode.Medium, 256); err == nil {
		resp.QRCode = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	} else {
		s.log.WarnContext(r.Context(), "qr code generation failed", "error", err)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	ctx := r.Context()

	if err := s.limiter.Check(ctx, "login", email); err != nil {
		s.limitError(w, r, err)
		return
	}

	ok := false
	id, err := s.store.userIDByEmail(ctx, email)
	if err == nil {
		var u *userRecord
		if u, err = s.store.user(ctx, id); err == nil {
			ok, err = verifyPassword(req.Password, u.PasswordHash)
		}
	}
	if err != nil && !errors.Is(err, errUserNotFound) {
		s.internalError(w, r, "login lookup failed", err)
		return
	}
	if !ok {
		_ = s.limiter.Fail(ctx, "login", email)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	_ = s.limiter.Reset(ctx, "login", email)
	writeJSON(w, http.StatusOK, loginResponse{MFARequired: true, UserID: id})
}

func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Provide a user id and exactly one of token or backupCode")
		return
	}
	ctx := r.Context()

	if err := s.limiter.Check(ctx, "mfa", req.UserID); err != nil {
		s.limitError(w, r, err)
		return
	}

	u, err := s.store.user(ctx, req.UserID)
	if err != nil && !errors.Is(err, errUserNotFound) {
		s.internalError(w, r, "mfa user lookup failed", err)
		return
	}

	ok := false
	if u != nil {
		if req.BackupCode != "" {
			ok, err = s.store.consumeBackupCode(ctx, u.ID, backupCodeHash(req.BackupCode))
		} else {
			ok, err = s.checkTOTP(r, u, req.Token)
		}
		if err != nil {
			s.internalError(w, r, "mfa verification failed", err)
			return
		}
	}
	if !ok {
		_ = s.limiter.Fail(ctx, "mfa", req.UserID)
		writeError(w, http.StatusUnauthorized, "Invalid code")
		return
	}
	_ = s.limiter.Reset(ctx, "mfa", req.UserID)

	token, err := s.startSession(w, r, u.ID, uuid.NewString())
	if err != nil {
		s.internalError(w, r, "session creation failed", err)
		return
	}
	if err := s.store.touch(ctx, u.ID, "last_login_at", s.now()); err != nil {
		s.log.WarnContext(ctx, "last login update failed", "error", err)
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) checkTOTP(r *http.Request, u *userRecord, code string) (bool, error) {
	ok, counter, err := verifyTOTP(u.TOTPSecret, code, s.now(), s.cfg.TOTPSkew)
	if err != nil || !ok {
		return false, err
	}
	window := time.Duration(2*s.cfg.TOTPSkew+1) * totpPeriod * time.Second
	return s.store.markTOTPUsed(r.Context(), u.ID, counter, window)
}

// startSession stores a fresh refresh token for sid, sets it as an HttpOnly
// cookie and returns a new access token.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID, sid string) (string, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	refresh := base64.RawURLEncoding.EncodeToString(raw)
	if err := s.store.createRefresh(r.Context(), refresh, refreshSession{UserID: userID, SID: sid}, s.cfg.RefreshTTL); err != nil {
		return "", err
	}
	access, err := s.tokens.CreateAccess(userID, sid)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, s.refreshCookie(refresh, int(s.cfg.RefreshTTL.Seconds())))
	return access, nil
}

func (s *Server) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     s.cfg.Prefix + "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil || c.Value == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token missing")
		return
	}
	sess, err := s.store.takeRefresh(r.Context(), c.Value)
	if err != nil {
		if !errors.Is(err, errSessionUnknown) {
			s.internalError(w, r, "refresh lookup failed", err)
			return
		}
		http.SetCookie(w, s.refreshCookie("", -1))
		writeError(w, http.StatusUnauthorized, "Refresh token invalid")
		return
	}

	token, err := s.startSession(w, r, sess.UserID, sess.SID)
	if err != nil {
		s.internalError(w, r, "session rotation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleLogout ends the refresh session named by the cookie and revokes the
// presented access token's session. It always succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var sids []string
	if c, err := r.Cookie(s.cfg.CookieName); err == nil && c.Value != "" {
		if sess, err := s.store.takeRefresh(ctx, c.Value); err == nil {
			sids = append(sids, sess.SID)
		}
	}
	if raw, ok := cutBearer(r); ok {
		if claims, err := s.tokens.ParseAccess(raw); err == nil {
			sids = append(sids, claims.SID)
		}
	}
	for _, sid := range sids {
		if err := s.store.revoke(ctx, sid, s.cfg.AccessTTL); err != nil {
			s.log.WarnContext(ctx, "session revocation failed", "error", err)
		}
	}

	http.SetCookie(w, s.refreshCookie("", -1))
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := s.store.user(ctx, userIDFrom(ctx))
	if err != nil {
		if errors.Is(err, errUserNotFound) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		s.internalError(w, r, "profile lookup failed", err)
		return
	}
	remaining, err := s.store.backupCodesRemaining(ctx, u.ID)
	if err != nil {
		s.internalError(w, r, "backup code count failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]profile{"user": {
		ID:                   u.ID,
		Email:                u.Email,
		Role:                 u.Role,
		MFAEnabled:           u.TOTPSecret != "",
		BackupCodesRemaining: remaining,
		LastBackupRotation:   formatTime(u.LastBackupRotate),
		CreatedAt:            formatTime(u.CreatedAt),
		LastLoginAt:          formatTime(u.LastLoginAt),
	}})
}

func (s *Server) handleRotateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	codes, err := newBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		s.internalError(w, r, "backup code generation failed", err)
		return
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = backupCodeHash(c)
	}
	if err := s.store.replaceBackupCodes(ctx, userID, hashes); err != nil {
		s.internalError(w, r, "backup code storage failed", err)
		return
	}
	if err := s.store.touch(ctx, userID, "backup_rotated_at", s.now()); err != nil {
		s.log.WarnContext(ctx, "rotation timestamp update failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"codes": codes})
}

func (s *Server) limitError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, rate.ErrRateLimited) {
		writeError(w, http.StatusTooManyRequests, "Too many attempts. Try again later.")
		return
	}
	s.internalError(w, r, "rate limiter unavailable", err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.ErrorContext(r.Context(), msg, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal error")
}
