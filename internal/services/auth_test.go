package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/models"
	"github.com/AnshRaj112/serenify-auth/internal/ratelimit"
	"github.com/AnshRaj112/serenify-auth/internal/store"
	"github.com/AnshRaj112/serenify-auth/pkg/log"
	"github.com/AnshRaj112/serenify-auth/pkg/utils"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *captureMailer) Send(_ context.Context, e Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return "id", m.err
}

func (m *captureMailer) all() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

var tokenInLink = regexp.MustCompile(`token=([0-9a-f]+)`)

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	sent := m.all()
	require.NotEmpty(t, sent)
	match := tokenInLink.FindStringSubmatch(sent[len(sent)-1].HTML)
	require.Len(t, match, 2)
	return match[1]
}

type fakeOAuth struct {
	identity *ProviderIdentity
	err      error
}

func (f fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f fakeOAuth) ExchangeCode(context.Context, string) (*ProviderIdentity, error) {
	return f.identity, f.err
}

// flakyHasher fails the first failHash calls to Hash and counts Verify calls.
type flakyHasher struct {
	PasswordHasher
	mu       sync.Mutex
	failHash int
	verifies int
}

func (h *flakyHasher) Hash(ctx context.Context, password string) (string, error) {
	h.mu.Lock()
	if h.failHash > 0 {
		h.failHash--
		h.mu.Unlock()
		return "", errors.New("hash queue full")
	}
	h.mu.Unlock()
	return h.PasswordHasher.Hash(ctx, password)
}

func (h *flakyHasher) Verify(ctx context.Context, password, digest string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.PasswordHasher.Verify(ctx, password, digest)
}

func (h *flakyHasher) verifyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type fakeUploader struct{}

func (fakeUploader) UploadAvatar(_ context.Context, userID uuid.UUID, file io.Reader) (string, error) {
	if _, err := ReadAvatar(file); err != nil {
		return "", err
	}
	return "https://cdn.example.com/" + userID.String() + ".webp", nil
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, ratelimit.Policy, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (a *recordingAuditor) Record(e models.SecurityEvent) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

func (a *recordingAuditor) types() []models.SecurityEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.SecurityEventType
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

type authFixture struct {
	svc     *AuthService
	store   *store.Memory
	mailer  *captureMailer
	clock   *testClock
	auditor *recordingAuditor
}

var meta = RequestMeta{IP: "203.0.113.7", UserAgent: "test-agent"}

func newAuthFixture(t *testing.T, opts ...func(*AuthDeps)) *authFixture {
	t.Helper()
	mem := store.NewMemory()
	clock := newTestClock()
	mailer := &captureMailer{}
	auditor := &recordingAuditor{}
	deps := AuthDeps{
		Store:     mem,
		Hasher:    utils.NewHasher(bcrypt.MinCost, 4),
		Tokens:    NewTokenService(testTokenConfig(), mem, clock.Now),
		Limiter:   ratelimit.NewMemory(),
		Mailer:    mailer,
		Templates: EmailTemplates{FrontendURL: "http://localhost:3000"},
		Uploader:  fakeUploader{},
		Auditor:   auditor,
		Logger:    log.Nop(),
		Now:       clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc := NewAuthService(deps, AuthConfig{
		Policies:        ratelimit.DefaultPolicies(false),
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	})
	t.Cleanup(svc.Close)
	return &authFixture{svc: svc, store: mem, mailer: mailer, clock: clock, auditor: auditor}
}

func validSignup() SignupInput {
	return SignupInput{Email: "a@b.com", Password: "Abcd123!", ConfirmPassword: "Abcd123!", FirstName: "A", LastName: "B"}
}

func (f *authFixture) signupVerified(t *testing.T) *AuthResult {
	t.Helper()
	res, err := f.svc.Signup(context.Background(), meta, validSignup())
	require.NoError(t, err)
	f.svc.Close()
	require.NoError(t, f.svc.VerifyEmail(context.Background(), meta, f.mailer.lastToken(t)))
	return res
}

func TestSignupHappyPath(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, "a@b.com", res.User.Email)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "A", res.Profile.FirstName)

	f.svc.Close()
	rec, err := f.store.FindVerificationToken(ctx, f.mailer.lastToken(t))
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, rec.UserID)
	assert.False(t, rec.Expired(f.clock.Now()))
	assert.Equal(t, "a@b.com", f.mailer.all()[0].To)
	assert.Contains(t, f.auditor.types(), models.EventSignup)
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)

	dup := validSignup()
	dup.Email = "A@B.com"
	_, err = f.svc.Signup(ctx, meta, dup)
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).Status())
	assert.Equal(t, "Email already exists", apperr.As(err).Message)
}

func TestSignupPasswordMismatch(t *testing.T) {
	f := newAuthFixture(t)
	in := validSignup()
	in.ConfirmPassword = "Xyz123!"

	_, err := f.svc.Signup(context.Background(), meta, in)
	e := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, 400, e.Status())
	assert.Equal(t, "Passwords don't match", e.Message)

	_, err = f.store.FindActiveUserByEmail(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSignupEnumeratesComplexityRules(t *testing.T) {
	f := newAuthFixture(t)
	in := validSignup()
	in.Password, in.ConfirmPassword = "abc", "abc"

	_, err := f.svc.Signup(context.Background(), meta, in)
	e := apperr.As(err)
	assert.Equal(t, "Validation failed", e.Message)
	assert.Contains(t, e.Errors, "Password must be at least 8 characters long")
	assert.Contains(t, e.Errors, "Password must contain at least one uppercase letter")
}

func TestSigninUnknownEmailAndWrongPasswordLookTheSame(t *testing.T) {
	f := newAuthFixture(t)
	f.signupVerified(t)
	ctx := context.Background()

	_, errUnknown := f.svc.Signin(ctx, meta, SigninInput{Email: "nobody@b.com", Password: "Abcd123!"})
	_, errWrong := f.svc.Signin(ctx, meta, SigninInput{Email: "a@b.com", Password: "Wrong123!"})

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, apperr.As(errUnknown).Message, apperr.As(errWrong).Message)
	assert.Equal(t, apperr.As(errUnknown).Status(), apperr.As(errWrong).Status())
	assert.Equal(t, 401, apperr.As(errWrong).Status())
}

func TestSigninRequiresVerifiedEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)

	_, err = f.svc.Signin(ctx, meta, SigninInput{Email: "a@b.com", Password: "Abcd123!"})
	assert.True(t, apperr.Is(err, apperr.KindEmailNotVerified))

	f.svc.Close()
	require.NoError(t, f.svc.VerifyEmail(ctx, meta, f.mailer.lastToken(t)))

	res, err := f.svc.Signin(ctx, meta, SigninInput{Email: " A@B.COM ", Password: "Abcd123!"})
	require.NoError(t, err)
	assert.True(t, res.User.EmailVerified)
	assert.Equal(t, "A", res.Profile.FirstName)
}

func TestVerificationTokenIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)
	f.svc.Close()
	token := f.mailer.lastToken(t)

	require.NoError(t, f.svc.VerifyEmail(ctx, meta, token))
	err = f.svc.VerifyEmail(ctx, meta, token)
	assert.True(t, apperr.Is(err, apperr.KindTokenInvalid))
}

func TestExpiredVerificationToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)
	f.svc.Close()

	f.clock.Advance(24*time.Hour + time.Second)
	err = f.svc.VerifyEmail(ctx, meta, f.mailer.lastToken(t))
	e := apperr.As(err)
	assert.Equal(t, 410, e.Status())
	assert.Equal(t, "Verification token expired", e.Message)
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, meta, "nobody@b.com"))
	f.svc.Close()
	assert.Empty(t, f.mailer.all())
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first := f.signupVerified(t)

	require.NoError(t, f.svc.ForgotPassword(ctx, meta, "A@b.com"))
	f.svc.Close()
	token := f.mailer.lastToken(t)

	in := ResetPasswordInput{Token: token, NewPassword: "Newpass1!", ConfirmPassword: "Newpass1!"}
	require.NoError(t, f.svc.ResetPassword(ctx, meta, in))

	err := f.svc.ResetPassword(ctx, meta, in)
	assert.True(t, apperr.Is(err, apperr.KindTokenInvalid))

	_, err = f.svc.RefreshToken(ctx, meta, first.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindTokenInvalid), "reset must revoke existing refresh tokens")

	_, err = f.svc.Signin(ctx, meta, SigninInput{Email: "a@b.com", Password: "Abcd123!"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
	_, err = f.svc.Signin(ctx, meta, SigninInput{Email: "a@b.com", Password: "Newpass1!"})
	assert.NoError(t, err)
	assert.Contains(t, f.auditor.types(), models.EventPasswordReset)
}

func TestExpiredResetToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.signupVerified(t)
	require.NoError(t, f.svc.ForgotPassword(ctx, meta, "a@b.com"))
	f.svc.Close()

	f.clock.Advance(time.Hour + time.Second)
	err := f.svc.ResetPassword(ctx, meta, ResetPasswordInput{Token: f.mailer.lastToken(t), NewPassword: "Newpass1!", ConfirmPassword: "Newpass1!"})
	assert.True(t, apperr.Is(err, apperr.KindTokenExpired))
}

func TestStrictPolicyRejectsSixthRequest(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := f.svc.VerifyEmail(ctx, meta, "unknown")
		require.True(t, apperr.Is(err, apperr.KindTokenInvalid))
	}
	err := f.svc.VerifyEmail(ctx, meta, "unknown")
	e := apperr.As(err)
	require.Equal(t, 429, e.Status())
	assert.Greater(t, e.RetryAfter, 0)
	require.Len(t, e.Errors, 1)
	assert.Contains(t, e.Errors[0], "Please wait")
	assert.Contains(t, f.auditor.types(), models.EventRateLimited)
}

func TestLimiterFailureFailsOpen(t *testing.T) {
	f := newAuthFixture(t, func(d *AuthDeps) { d.Limiter = failingLimiter{} })
	_, err := f.svc.Signup(context.Background(), meta, validSignup())
	assert.NoError(t, err)
}

func TestRefreshTokenAndLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signupVerified(t)

	out, err := f.svc.RefreshToken(ctx, meta, res.RefreshToken)
	require.NoError(t, err)
	claims, err := f.svc.Tokens.Verify(out.AccessToken, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID())

	_, err = f.svc.RefreshToken(ctx, meta, res.AccessToken)
	assert.Equal(t, "Invalid refresh token", apperr.As(err).Message)

	f.svc.Logout(ctx, meta, res.RefreshToken)
	_, err = f.svc.RefreshToken(ctx, meta, res.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindTokenInvalid))

	// logout with garbage still succeeds silently
	f.svc.Logout(ctx, meta, "garbage")
}

func TestDeletedAccountCannotRefresh(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signupVerified(t)

	require.NoError(t, f.svc.DeleteAccount(ctx, meta, res.User.ID))
	_, err := f.svc.RefreshToken(ctx, meta, res.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindTokenInvalid))

	_, err = f.svc.GetMe(ctx, res.User.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGoogleAuthCreatesAndLinks(t *testing.T) {
	identity := &ProviderIdentity{ProviderID: "g-1", Email: "G@Example.com", EmailVerified: true, Name: "Grace Brewster Hopper", PictureURL: "https://img/g.png"}
	f := newAuthFixture(t, func(d *AuthDeps) { d.OAuth = fakeOAuth{identity: identity} })
	ctx := context.Background()

	res, err := f.svc.GoogleAuth(ctx, meta, "code")
	require.NoError(t, err)
	assert.True(t, res.User.EmailVerified)
	assert.True(t, res.User.IsOAuthUser)
	assert.Equal(t, "g@example.com", res.User.Email)
	assert.Equal(t, "Grace", res.Profile.FirstName)
	assert.Equal(t, "Brewster Hopper", res.Profile.LastName)
	assert.Equal(t, "https://img/g.png", res.Profile.AvatarURL)

	again, err := f.svc.GoogleAuth(ctx, meta, "code")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)

	// Google accounts have no password to sign in with.
	_, err = f.svc.Signin(ctx, meta, SigninInput{Email: "g@example.com", Password: "Abcd123!"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
}

func TestGoogleAuthLinksExistingPasswordAccount(t *testing.T) {
	identity := &ProviderIdentity{ProviderID: "g-2", Email: "a@b.com", EmailVerified: true, Name: "Ada"}
	f := newAuthFixture(t, func(d *AuthDeps) { d.OAuth = fakeOAuth{identity: identity} })
	ctx := context.Background()
	signup, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)

	res, err := f.svc.GoogleAuth(ctx, meta, "code")
	require.NoError(t, err)
	assert.Equal(t, signup.User.ID, res.User.ID)
	assert.True(t, res.User.EmailVerified)
	assert.False(t, res.User.IsOAuthUser)
	assert.Equal(t, "Ada", res.Profile.FirstName)
	assert.Equal(t, "User", res.Profile.LastName)
}

func TestGoogleAuthUnverifiedEmailCannotClaimAccount(t *testing.T) {
	identity := &ProviderIdentity{ProviderID: "g-3", Email: "a@b.com", Name: "Mallory"}
	f := newAuthFixture(t, func(d *AuthDeps) { d.OAuth = fakeOAuth{identity: identity} })
	ctx := context.Background()
	victim := f.signupVerified(t)

	res, err := f.svc.GoogleAuth(ctx, meta, "code")
	assert.Nil(t, res)
	e := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, apperr.KindUnauthorized, e.Kind)
	assert.Equal(t, "Google email not verified", e.Message)

	u, err := f.store.FindActiveUserByID(ctx, victim.User.ID)
	require.NoError(t, err)
	assert.Nil(t, u.GoogleID, "account must not be linked")
	_, err = f.store.FindActiveUserByProviderID(ctx, "g-3")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// nor does it create a new account
	identity.Email = "fresh@b.com"
	_, err = f.svc.GoogleAuth(ctx, meta, "code")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = f.store.FindActiveUserByEmail(ctx, "fresh@b.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGoogleAuthLinkedAccountMatchesOnProviderID(t *testing.T) {
	identity := &ProviderIdentity{ProviderID: "g-4", Email: "g@example.com", EmailVerified: true, Name: "Grace"}
	f := newAuthFixture(t, func(d *AuthDeps) { d.OAuth = fakeOAuth{identity: identity} })
	ctx := context.Background()

	first, err := f.svc.GoogleAuth(ctx, meta, "code")
	require.NoError(t, err)

	identity.EmailVerified = false
	again, err := f.svc.GoogleAuth(ctx, meta, "code")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)
}

func TestGoogleAuthURL(t *testing.T) {
	f := newAuthFixture(t, func(d *AuthDeps) { d.OAuth = fakeOAuth{} })

	a, err := f.svc.GoogleAuthURL()
	require.NoError(t, err)
	b, err := f.svc.GoogleAuthURL()
	require.NoError(t, err)
	assert.Len(t, a.State, 32)
	assert.NotEqual(t, a.State, b.State)
	assert.Equal(t, "https://accounts.example.com/auth?state="+a.State, a.URL)

	_, err = newAuthFixture(t).svc.GoogleAuthURL()
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGoogleAuthExchangeFailure(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.GoogleAuth(context.Background(), meta, "code")
	assert.Equal(t, 401, apperr.As(err).Status())

	_, err = f.svc.GoogleAuth(context.Background(), meta, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signupVerified(t)

	err := f.svc.ChangePassword(ctx, meta, res.User.ID, ChangePasswordInput{CurrentPassword: "Nope123!", NewPassword: "Newpass1!", ConfirmPassword: "Newpass1!"})
	assert.Equal(t, []string{"Invalid current password"}, apperr.As(err).Errors)

	err = f.svc.ChangePassword(ctx, meta, res.User.ID, ChangePasswordInput{CurrentPassword: "Abcd123!", NewPassword: "Newpass1!", ConfirmPassword: "Other123!"})
	assert.Equal(t, "Passwords don't match", apperr.As(err).Message)

	require.NoError(t, f.svc.ChangePassword(ctx, meta, res.User.ID, ChangePasswordInput{CurrentPassword: "Abcd123!", NewPassword: "Newpass1!", ConfirmPassword: "Newpass1!"}))
	_, err = f.svc.Signin(ctx, meta, SigninInput{Email: "a@b.com", Password: "Newpass1!"})
	assert.NoError(t, err)
}

func TestSendVerificationEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)

	require.NoError(t, f.svc.SendVerificationEmail(ctx, meta, res.User.ID))
	f.svc.Close()
	assert.Len(t, f.mailer.all(), 2)

	require.NoError(t, f.svc.VerifyEmail(ctx, meta, f.mailer.lastToken(t)))
	err = f.svc.SendVerificationEmail(ctx, meta, res.User.ID)
	assert.Equal(t, "Email already verified", apperr.As(err).Message)
}

func TestForgotPasswordThrottlesByTargetEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m := RequestMeta{IP: fmt.Sprintf("198.51.100.%d", i+1), UserAgent: fmt.Sprintf("agent-%d", i)}
		require.NoError(t, f.svc.ForgotPassword(ctx, m, "target@b.com"))
	}
	fresh := RequestMeta{IP: "192.0.2.200", UserAgent: "other-agent"}
	err := f.svc.ForgotPassword(ctx, fresh, "Target@B.com")
	e := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, 429, e.Status())
	assert.Equal(t, "Too many password reset requests, please try again later.", e.Message)
	assert.Equal(t, 3, e.Limit)

	assert.NoError(t, f.svc.ForgotPassword(ctx, fresh, "someone-else@b.com"))
}

func TestSendVerificationEmailThrottlesByTargetEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res, err := f.svc.Signup(ctx, meta, validSignup())
	require.NoError(t, err)
	other := validSignup()
	other.Email = "c@d.com"
	otherRes, err := f.svc.Signup(ctx, meta, other)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		m := RequestMeta{IP: fmt.Sprintf("198.51.100.%d", i+1), UserAgent: fmt.Sprintf("agent-%d", i)}
		require.NoError(t, f.svc.SendVerificationEmail(ctx, m, res.User.ID))
	}
	fresh := RequestMeta{IP: "192.0.2.200", UserAgent: "other-agent"}
	err = f.svc.SendVerificationEmail(ctx, fresh, res.User.ID)
	e := apperr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, 429, e.Status())
	assert.Equal(t, "Too many email verification requests, please try again later.", e.Message)
	assert.Equal(t, 5, e.Limit)

	assert.NoError(t, f.svc.SendVerificationEmail(ctx, fresh, otherRes.User.ID))
}

func TestUnknownEmailSigninRetriesDummyHash(t *testing.T) {
	hasher := &flakyHasher{PasswordHasher: utils.NewHasher(bcrypt.MinCost, 4), failHash: 1}
	f := newAuthFixture(t, func(d *AuthDeps) { d.Hasher = hasher })
	in := SigninInput{Email: "nobody@b.com", Password: "Abcd123!"}

	_, err := f.svc.Signin(context.Background(), meta, in)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
	assert.Equal(t, 0, hasher.verifyCount())

	// a cancelled request still gets the digest built
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.Signin(ctx, meta, in)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
	assert.Equal(t, 1, hasher.verifyCount())

	_, err = f.svc.Signin(context.Background(), meta, in)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
	assert.Equal(t, 2, hasher.verifyCount())
}

func TestEmailFailureDoesNotFailSignup(t *testing.T) {
	f := newAuthFixture(t)
	f.mailer.err = errors.New("provider down")
	_, err := f.svc.Signup(context.Background(), meta, validSignup())
	assert.NoError(t, err)
}

func TestProfileManagement(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signupVerified(t)

	bio := strings.Repeat("x", 501)
	_, err := f.svc.UpdateProfile(ctx, res.User.ID, models.ProfilePatch{Bio: &bio})
	assert.Contains(t, apperr.As(err).Errors, "Bio must be less than 500 characters")

	bio, city, public := "  Hello\x00 ", "Oslo", false
	p, err := f.svc.UpdateProfile(ctx, res.User.ID, models.ProfilePatch{Bio: &bio, City: &city, IsPublic: &public})
	require.NoError(t, err)
	assert.Equal(t, "Hello", p.Bio)

	view, err := f.svc.GetPublicProfile(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", view.FirstName)
	assert.Empty(t, view.Bio)

	public = true
	_, err = f.svc.UpdateProfile(ctx, res.User.ID, models.ProfilePatch{IsPublic: &public})
	require.NoError(t, err)
	view, err = f.svc.GetPublicProfile(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", view.Bio)
	assert.Equal(t, "Oslo", view.City)

	_, err = f.svc.GetPublicProfile(ctx, uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUploadAvatar(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.signupVerified(t)

	png := []byte("\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32))
	p, err := f.svc.UploadAvatar(ctx, res.User.ID, strings.NewReader(string(png)))
	require.NoError(t, err)
	assert.Contains(t, p.AvatarURL, res.User.ID.String())

	_, err = f.svc.UploadAvatar(ctx, res.User.ID, strings.NewReader("plain text"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
