package lockr

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/MrEthical07/lockr/api"
	"github.com/MrEthical07/lockr/internal/audit"
	"github.com/MrEthical07/lockr/secret"
)

// Remote is the subset of the remote service the controller drives.
// *api.Client implements it.
type Remote interface {
	Login(ctx context.Context, email, password string) (api.LoginResponse, error)
	Register(ctx context.Context, email, password string) (api.Enrollment, error)
	VerifyMFA(ctx context.Context, userID, code string) (string, error)
	VerifyBackupCode(ctx context.Context, userID, code string) (string, error)
	RotateBackupCodes(ctx context.Context) ([]string, error)
	Me(ctx context.Context) (*api.UserProfile, error)
	Logout(ctx context.Context) error
}

// SecretStore is the vault unlock secret as the controller sees it.
// *secret.Store implements it.
type SecretStore interface {
	Save(ctx context.Context, value string) error
	Read(ctx context.Context) (string, bool)
	Exists(ctx context.Context) (bool, error)
	Challenge(ctx context.Context, p secret.Prompt) bool
}

// Controller owns the authentication state machine and the in-memory
// session. Methods are safe for concurrent use; state-changing operations
// are serialised and an overlapping call fails with ErrOperationInProgress.
type Controller struct {
	config  Config
	remote  Remote
	vault   *api.Client
	httpc   *http.Client
	session *Session
	secrets SecretStore
	devices deviceIdentity
	metrics *Metrics
	audit   *audit.Dispatcher
	log     *slog.Logger

	op sync.Mutex

	mu          sync.Mutex
	state       State
	pendingUser string
	deviceUser  string
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingUserID is the user id awaiting MFA, from login, registration or the
// stored device identity.
func (c *Controller) PendingUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingUser
}

// Session returns a snapshot of the in-memory session.
func (c *Controller) Session() SessionInfo {
	return c.session.Info()
}

// HTTPClient returns the client whose transport carries this session.
func (c *Controller) HTTPClient() *http.Client {
	return c.httpc
}

// Vault returns the remote vault client once the device is unlocked.
func (c *Controller) Vault() (*api.Client, error) {
	if c.State() != StateActive || c.session.AccessToken() == "" {
		return nil, ErrNotAuthenticated
	}
	return c.vault, nil
}

// Metrics returns the controller's counters.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a copy of all counters.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events dropped under backpressure.
func (c *Controller) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes queued audit events.
func (c *Controller) Close() {
	c.audit.Close()
}

func (c *Controller) begin() error {
	if !c.op.TryLock() {
		return ErrOperationInProgress
	}
	return nil
}

func (c *Controller) end() {
	c.op.Unlock()
}

func (c *Controller) require(allowed ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: operation not allowed in %s", ErrInvalidTransition, c.state)
}

func (c *Controller) moveTo(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, to) {
		return invalidTransition(c.state, to)
	}
	c.log.Debug("state transition", "from", c.state.String(), "to", to.String())
	c.state = to
	return nil
}

func (c *Controller) emit(ctx context.Context, eventType, userID string, success bool, err error, meta map[string]string) {
	if c.audit == nil {
		return
	}
	ev := audit.Event{
		EventType: eventType,
		UserID:    userID,
		State:     c.State().String(),
		Success:   success,
		Metadata:  meta,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.audit.Emit(ctx, ev)
}

// Bootstrap reads the device identity and enters LoggedOut or AwaitingMFA.
// Any in-memory session is discarded; a known device always re-challenges
// MFA. A storage error is logged and treated as an unknown device.
func (c *Controller) Bootstrap(ctx context.Context) (State, error) {
	if err := c.begin(); err != nil {
		return c.State(), err
	}
	defer c.end()

	if err := c.require(StateBootstrapping); err != nil {
		return c.State(), err
	}

	c.session.reset()

	userID, err := c.devices.load(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "device identity read failed", "error", err)
		userID = ""
	}

	if userID == "" {
		if err := c.moveTo(StateLoggedOut); err != nil {
			return c.State(), err
		}
		return StateLoggedOut, nil
	}

	c.mu.Lock()
	c.pendingUser = userID
	c.deviceUser = userID
	c.mu.Unlock()

	if err := c.moveTo(StateAwaitingMFA); err != nil {
		return c.State(), err
	}
	return StateAwaitingMFA, nil
}

// SubmitLogin sends the first factor. Credentials never establish a session:
// success always leads to AwaitingMFA.
func (c *Controller) SubmitLogin(ctx context.Context, email, password string) (LoginResult, error) {
	if err := c.begin(); err != nil {
		return LoginResult{}, err
	}
	defer c.end()

	if err := c.require(StateLoggedOut, StateAwaitingMFA); err != nil {
		return LoginResult{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidInput
	}

	c.metrics.Inc(MetricLoginAttempt)
	res, err := c.remote.Login(ctx, email, password)
	if err != nil {
		err = classifyAuthError(err)
		c.emit(ctx, AuditLogin, "", false, err, nil)
		return LoginResult{}, err
	}
	if !res.MFARequired {
		c.emit(ctx, AuditLogin, res.UserID, false, ErrMFAEnrollmentRequired, nil)
		return LoginResult{}, ErrMFAEnrollmentRequired
	}
	if res.UserID == "" {
		err := fmt.Errorf("%w: login response carried no user id", ErrMFAEnrollmentRequired)
		c.emit(ctx, AuditLogin, "", false, err, nil)
		return LoginResult{}, err
	}

	c.mu.Lock()
	c.pendingUser = res.UserID
	c.mu.Unlock()
	if err := c.moveTo(StateAwaitingMFA); err != nil {
		return LoginResult{}, err
	}

	c.metrics.Inc(MetricLoginMFARequired)
	c.emit(ctx, AuditLogin, res.UserID, true, nil, nil)
	return LoginResult{MFARequired: true, UserID: res.UserID}, nil
}

// SubmitRegistration creates an account and returns its MFA enrolment
// material. The state is unchanged; the new user id becomes the pending MFA
// user.
func (c *Controller) SubmitRegistration(ctx context.Context, email, password string) (Enrollment, error) {
	if err := c.begin(); err != nil {
		return Enrollment{}, err
	}
	defer c.end()

	if err := c.require(StateLoggedOut, StateAwaitingMFA); err != nil {
		return Enrollment{}, err
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Enrollment{}, ErrInvalidInput
	}

	enr, err := c.remote.Register(ctx, email, password)
	if err != nil {
		c.emit(ctx, AuditRegister, "", false, err, nil)
		return Enrollment{}, err
	}
	if enr.UserID != "" {
		c.mu.Lock()
		c.pendingUser = enr.UserID
		c.mu.Unlock()
	}

	c.metrics.Inc(MetricRegistration)
	c.emit(ctx, AuditRegister, enr.UserID, true, nil, nil)
	return enr, nil
}

// SubmitMFA verifies a TOTP code for userID.
func (c *Controller) SubmitMFA(ctx context.Context, userID, code string) (MFAOutcome, error) {
	return c.verifySecondFactor(ctx, userID, code, false)
}

// SubmitBackupCode verifies a single-use backup code for userID.
func (c *Controller) SubmitBackupCode(ctx context.Context, userID, code string) (MFAOutcome, error) {
	return c.verifySecondFactor(ctx, userID, code, true)
}

func (c *Controller) verifySecondFactor(ctx context.Context, userID, code string, backup bool) (MFAOutcome, error) {
	if err := c.begin(); err != nil {
		return MFAFail, err
	}
	defer c.end()

	if err := c.require(StateAwaitingMFA, StateLoggedOut); err != nil {
		return MFAFail, err
	}
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return MFAFail, ErrInvalidInput
	}

	eventType, success, failure := AuditMFAVerify, MetricMFASuccess, MetricMFAFailure
	verify := c.remote.VerifyMFA
	if backup {
		eventType, success, failure = AuditBackupCodeVerify, MetricBackupCodeUsed, MetricBackupCodeFailed
		verify = c.remote.VerifyBackupCode
	}

	token, err := verify(ctx, userID, code)
	if err != nil || token == "" {
		if err == nil {
			err = ErrAuthenticationFailed
		} else {
			err = classifyAuthError(err)
		}
		c.metrics.Inc(failure)
		c.emit(ctx, eventType, userID, false, err, nil)
		return MFAFail, err
	}

	// Check the secret first so a storage failure persists nothing.
	hasSecret, err := c.secrets.Exists(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSecretStorage, err)
		c.metrics.Inc(failure)
		c.emit(ctx, eventType, userID, false, err, nil)
		return MFAFail, err
	}

	c.session.establish(token, &UserProfile{ID: userID})

	if err := c.devices.save(ctx, userID); err != nil {
		c.session.reset()
		err = fmt.Errorf("%w: %w", ErrDeviceIdentity, err)
		c.metrics.Inc(failure)
		c.emit(ctx, eventType, userID, false, err, nil)
		return MFAFail, err
	}

	next, outcome := StateAwaitingSecretSetup, MFANeedSecret
	if hasSecret {
		next, outcome = StateUnlocking, MFAReady
	}
	if err := c.moveTo(next); err != nil {
		c.session.reset()
		return MFAFail, err
	}

	c.mu.Lock()
	c.pendingUser = userID
	c.deviceUser = userID
	c.mu.Unlock()

	c.metrics.Inc(success)
	c.emit(ctx, eventType, userID, true, nil, map[string]string{"outcome": outcome.String()})
	return outcome, nil
}

// CompleteSecretSetup validates and stores the vault unlock secret, then
// enters Active. Validation failures write nothing.
func (c *Controller) CompleteSecretSetup(ctx context.Context, value, confirm string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if err := c.require(StateAwaitingSecretSetup); err != nil {
		return err
	}
	if utf8.RuneCountInString(value) < c.config.Secret.MinLength {
		return ErrSecretTooShort
	}
	if subtle.ConstantTimeCompare([]byte(value), []byte(confirm)) != 1 {
		return ErrSecretMismatch
	}

	userID := c.userID()
	if err := c.secrets.Save(ctx, value); err != nil {
		err = fmt.Errorf("%w: %w", ErrSecretStorage, err)
		c.emit(ctx, AuditSecretSetup, userID, false, err, nil)
		return err
	}
	if err := c.moveTo(StateActive); err != nil {
		return err
	}

	c.metrics.Inc(MetricSecretSetup)
	c.emit(ctx, AuditSecretSetup, userID, true, nil, nil)
	return nil
}

// Unlock presents the device challenge. It does not read the secret. When
// the challenge is unavailable or declined it returns UnlockManualRequired
// with ErrManualUnlockRequired and the state stays Unlocking.
func (c *Controller) Unlock(ctx context.Context) (UnlockOutcome, error) {
	if err := c.begin(); err != nil {
		return UnlockManualRequired, err
	}
	defer c.end()

	if err := c.require(StateUnlocking); err != nil {
		return UnlockManualRequired, err
	}

	prompt := secret.Prompt{
		Message:               c.config.Secret.UnlockPromptText,
		CancelLabel:           c.config.Secret.UnlockCancelLabel,
		DisableDeviceFallback: !c.config.Secret.PINFallback,
	}
	userID := c.userID()
	if !c.secrets.Challenge(ctx, prompt) {
		c.emit(ctx, AuditUnlock, userID, false, ErrManualUnlockRequired, map[string]string{"method": "biometric"})
		return UnlockManualRequired, ErrManualUnlockRequired
	}
	if err := c.moveTo(StateActive); err != nil {
		return UnlockManualRequired, err
	}

	c.metrics.Inc(MetricUnlockBiometric)
	c.emit(ctx, AuditUnlock, userID, true, nil, map[string]string{"method": "biometric"})
	return UnlockBiometric, nil
}

// UnlockWithSecret is the manual fallback: the stored secret is re-read and
// compared with value. A wrong secret and an unreadable secret both return
// ErrAuthenticationFailed.
func (c *Controller) UnlockWithSecret(ctx context.Context, value string) (UnlockOutcome, error) {
	if err := c.begin(); err != nil {
		return UnlockManualRequired, err
	}
	defer c.end()

	if err := c.require(StateUnlocking); err != nil {
		return UnlockManualRequired, err
	}

	userID := c.userID()
	stored, ok := c.secrets.Read(ctx)
	if !ok || value == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(value)) != 1 {
		c.metrics.Inc(MetricUnlockFailure)
		c.emit(ctx, AuditUnlock, userID, false, ErrAuthenticationFailed, map[string]string{"method": "secret"})
		return UnlockManualRequired, ErrAuthenticationFailed
	}
	if err := c.moveTo(StateActive); err != nil {
		return UnlockManualRequired, err
	}

	c.metrics.Inc(MetricUnlockManual)
	c.emit(ctx, AuditUnlock, userID, true, nil, map[string]string{"method": "secret"})
	return UnlockManual, nil
}

// LoadProfile replaces the in-memory profile with the remote one. It is a
// no-op without a token and never returns an error: failures are logged and
// the previous profile is kept.
func (c *Controller) LoadProfile(ctx context.Context) {
	if c.session.AccessToken() == "" {
		return
	}
	user, err := c.remote.Me(ctx)
	if err != nil {
		c.metrics.Inc(MetricProfileLoadFailure)
		c.log.WarnContext(ctx, "profile load failed", "error", err)
		return
	}
	if user == nil {
		c.log.WarnContext(ctx, "profile response carried no user")
		return
	}
	if c.session.AccessToken() == "" {
		return
	}
	c.session.setUser(user)
}

// RotateBackupCodes replaces the account's backup codes, returns the new set
// and refreshes the profile so the remaining count is current.
func (c *Controller) RotateBackupCodes(ctx context.Context) ([]string, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	if c.session.AccessToken() == "" {
		return nil, ErrNotAuthenticated
	}
	userID := c.userID()
	codes, err := c.remote.RotateBackupCodes(ctx)
	if err != nil {
		c.emit(ctx, AuditBackupCodesRotate, userID, false, err, nil)
		return nil, err
	}

	c.metrics.Inc(MetricBackupCodeRotated)
	c.emit(ctx, AuditBackupCodesRotate, userID, true, nil, nil)
	c.LoadProfile(ctx)
	return codes, nil
}

// Logout invalidates the remote session best-effort, clears the in-memory
// session and the device identity, and enters LoggedOut. The vault unlock
// secret is kept. A storage error is returned but the state is LoggedOut
// regardless.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	userID := c.userID()
	if c.session.AccessToken() != "" {
		if err := c.remote.Logout(ctx); err != nil {
			c.log.DebugContext(ctx, "remote logout failed", "error", err)
		}
	}

	c.session.reset()
	storeErr := c.devices.forget(ctx)

	c.mu.Lock()
	c.pendingUser = ""
	c.deviceUser = ""
	from := c.state
	c.mu.Unlock()

	if from != StateLoggedOut {
		if err := c.moveTo(StateLoggedOut); err != nil {
			return err
		}
	}

	c.metrics.Inc(MetricLogout)
	if storeErr != nil {
		storeErr = fmt.Errorf("%w: %w", ErrDeviceIdentity, storeErr)
		c.emit(ctx, AuditLogout, userID, false, storeErr, nil)
		return storeErr
	}
	c.emit(ctx, AuditLogout, userID, true, nil, nil)
	return nil
}

// sessionExpired runs when the transport clears the token after a failed
// refresh. The device identity is kept so the next step is MFA.
func (c *Controller) sessionExpired() {
	c.mu.Lock()
	from := c.state
	if !sessionState(from) {
		c.mu.Unlock()
		return
	}
	to := StateLoggedOut
	if c.deviceUser != "" {
		to = StateAwaitingMFA
		c.pendingUser = c.deviceUser
	}
	c.state = to
	userID := c.deviceUser
	c.mu.Unlock()

	c.log.Info("session expired", "from", from.String(), "to", to.String())
	c.metrics.Inc(MetricSessionExpired)
	c.emit(context.Background(), AuditSessionExpired, userID, true, nil, nil)
}

func (c *Controller) userID() string {
	if u := c.session.User(); u != nil && u.ID != "" {
		return u.ID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingUser
}

// classifyAuthError collapses credential rejections into
// ErrAuthenticationFailed and passes transport failures through.
func classifyAuthError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return err
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return ErrAuthenticationFailed
		}
	}
	return err
}
