package services

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/models"
	"github.com/AnshRaj112/serenify-auth/internal/ratelimit"
	"github.com/AnshRaj112/serenify-auth/internal/store"
	"github.com/AnshRaj112/serenify-auth/pkg/utils"
)

const (
	msgValidationFailed   = "Validation failed"
	msgPasswordsDontMatch = "Passwords don't match"
	opaqueTokenBytes      = 32
	emailDispatchTimeout  = 15 * time.Second
)

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, digest string) (bool, error)
}

// RequestMeta identifies the caller for rate limiting and auditing.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type AuthConfig struct {
	Policies        ratelimit.Policies
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

type AuthDeps struct {
	Store     store.Store
	Hasher    PasswordHasher
	Tokens    *TokenService
	Limiter   ratelimit.Limiter
	Mailer    Mailer
	Templates EmailTemplates
	OAuth     OAuthProvider
	Uploader  AvatarUploader
	Auditor   Auditor
	Logger    zerolog.Logger
	Now       func() time.Time
}

// AuthService runs the account flows. Every flow checks its rate-limit
// policy first, then validates input, then touches the store.
type AuthService struct {
	AuthDeps
	cfg AuthConfig

	dummyMu   sync.Mutex
	dummyHash string

	mailWG sync.WaitGroup
}

func NewAuthService(deps AuthDeps, cfg AuthConfig) *AuthService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Auditor == nil {
		deps.Auditor = NopAuditor{}
	}
	if deps.OAuth == nil {
		deps.OAuth = DisabledOAuth{}
	}
	if deps.Uploader == nil {
		deps.Uploader = DisabledUploader{}
	}
	if deps.Templates.VerificationTTL == 0 {
		deps.Templates.VerificationTTL = cfg.VerificationTTL
	}
	if deps.Templates.ResetTTL == 0 {
		deps.Templates.ResetTTL = cfg.ResetTTL
	}
	return &AuthService{AuthDeps: deps, cfg: cfg}
}

// Close waits for queued emails to finish sending.
func (s *AuthService) Close() {
	s.mailWG.Wait()
}

type AuthResult struct {
	User         *models.User    `json:"user"`
	Profile      *models.Profile `json:"profile"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

type AccountView struct {
	User    *models.User    `json:"user"`
	Profile *models.Profile `json:"profile"`
}

type RefreshOutput struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// limit consumes one request of policy for key. Limiter failures let the
// request through.
func (s *AuthService) limit(ctx context.Context, policy ratelimit.Policy, key string, meta RequestMeta) error {
	d, err := s.Limiter.Allow(ctx, policy, key)
	if err != nil {
		s.Logger.Warn().Err(err).Str("policy", policy.Name).Msg("rate limiter unavailable, allowing request")
		return nil
	}
	if d.Allowed {
		return nil
	}
	s.audit(models.EventRateLimited, meta, "", "", policy.Name)
	return apperr.RateLimited(policy.Message, d.RetryAfterSeconds()).WithQuota(d.Limit, d.ResetAt)
}

func (s *AuthService) audit(t models.SecurityEventType, meta RequestMeta, userID, email, detail string) {
	s.Auditor.Record(models.SecurityEvent{
		CreatedAt: s.Now().UTC(),
		Type:      t,
		UserID:    userID,
		Email:     email,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Detail:    detail,
	})
}

// sendAsync delivers email in the background. Failures are logged and never
// reach the caller.
func (s *AuthService) sendAsync(email Email) {
	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emailDispatchTimeout)
		defer cancel()
		if _, err := s.Mailer.Send(ctx, email); err != nil {
			s.Logger.Error().Err(err).Str("subject", email.Subject).Msg("failed to send email")
		}
	}()
}

// verifyDummy spends the same hashing time as a real password check so
// unknown accounts cannot be told apart by latency.
func (s *AuthService) verifyDummy(ctx context.Context, password string) {
	if digest := s.dummyDigest(); digest != "" {
		_, _ = s.Hasher.Verify(ctx, password, digest)
	}
}

// dummyDigest hashes a throwaway password on first use. A failed attempt is
// retried on the next call. The caller's context is not used so one
// cancelled request cannot leave the digest empty.
func (s *AuthService) dummyDigest() string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		if h, err := s.Hasher.Hash(context.Background(), "not-a-real-password-Aa1!"); err == nil {
			s.dummyHash = h
		}
	}
	return s.dummyHash
}

func (s *AuthService) newVerificationToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := utils.RandomToken(opaqueTokenBytes)
	if err != nil {
		return "", err
	}
	err = s.Store.InsertVerificationToken(ctx, &models.EmailVerificationToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: s.Now().Add(s.cfg.VerificationTTL),
	})
	return token, err
}

func (s *AuthService) newResetToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token, err := utils.RandomToken(opaqueTokenBytes)
	if err != nil {
		return "", err
	}
	err = s.Store.InsertPasswordResetToken(ctx, &models.PasswordResetToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: s.Now().Add(s.cfg.ResetTTL),
	})
	return token, err
}

func (s *AuthService) issue(ctx context.Context, user *models.User, profile *models.Profile) (*AuthResult, error) {
	pair, err := s.Tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Profile: profile, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (s *AuthService) profileFor(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p, err := s.Store.FindProfileByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *AuthService) activeUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.Store.FindActiveUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	return u, err
}

type SignupInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
}

func (s *AuthService) Signup(ctx context.Context, meta RequestMeta, in SignupInput) (*AuthResult, error) {
	if err := s.limit(ctx, s.cfg.Policies.Auth, ratelimit.ClientKey(meta.IP, meta.UserAgent), meta); err != nil {
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperr.Validation(msgPasswordsDontMatch, msgPasswordsDontMatch)
	}

	email := utils.NormalizeEmail(in.Email)
	firstName, lastName := utils.Sanitize(in.FirstName), utils.Sanitize(in.LastName)
	var v utils.Validator
	v.Check(utils.ValidateEmail(email))
	v.ValidatePassword("password", in.Password)
	v.Check(utils.ValidateName("firstName", "First name", firstName))
	v.Check(utils.ValidateName("lastName", "Last name", lastName))
	if !v.Valid() {
		return nil, apperr.Validation(msgValidationFailed, v.Messages()...)
	}

	if _, err := s.Store.FindActiveUserByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("Email already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	digest, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Email: email, PasswordHash: &digest}
	profile := &models.Profile{FirstName: firstName, LastName: lastName}
	if err := s.Store.CreateUserWithProfile(ctx, user, profile); err != nil {
		// the unique index is the real guard against concurrent signups
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("Email already exists")
		}
		return nil, err
	}

	token, err := s.newVerificationToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	res, err := s.issue(ctx, user, profile)
	if err != nil {
		return nil, err
	}

	mail := s.Templates.Verification(firstName, token)
	mail.To = email
	s.sendAsync(mail)
	s.audit(models.EventSignup, meta, user.ID.String(), email, "")
	return res, nil
}

type SigninInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) Signin(ctx context.Context, meta RequestMeta, in SigninInput) (*AuthResult, error) {
	if err := s.limit(ctx, s.cfg.Policies.Auth, ratelimit.ClientKey(meta.IP, meta.UserAgent), meta); err != nil {
		return nil, err
	}
	email := utils.NormalizeEmail(in.Email)
	var v utils.Validator
	v.Check(utils.ValidateEmail(email))
	if in.Password == "" {
		v.Add("password", "Password is required")
	}
	if !v.Valid() {
		return nil, apperr.Validation(msgValidationFailed, v.Messages()...)
	}

	user, err := s.Store.FindActiveUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if user == nil || !user.HasPassword() {
		s.verifyDummy(ctx, in.Password)
		s.audit(models.EventSigninFailure, meta, "", email, "unknown account")
		return nil, apperr.InvalidCredentials()
	}

	ok, err := s.Hasher.Verify(ctx, in.Password, *user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.audit(models.EventSigninFailure, meta, user.ID.String(), email, "wrong password")
		return nil, apperr.InvalidCredentials()
	}
	if !user.EmailVerified {
		return nil, apperr.EmailNotVerified()
	}

	profile, err := s.profileFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	res, err := s.issue(ctx, user, profile)
	if err != nil {
		return nil, err
	}
	s.audit(models.EventSigninSuccess, meta, user.ID.String(), email, "")
	return res, nil
}

func (s *AuthService) GoogleAuth(ctx context.Context, meta RequestMeta, code string) (*AuthResult, error) {
	if err := s.limit(ctx, s.cfg.Policies.Auth, ratelimit.ClientKey(meta.IP, meta.UserAgent), meta); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, apperr.Validation(msgValidationFailed, "Authorization code is required")
	}

	identity, err := s.OAuth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "Google authentication failed", err)
	}
	email := utils.NormalizeEmail(identity.Email)
	firstName, lastName := SplitName(identity.Name)

	user, err := s.Store.FindActiveUserByProviderID(ctx, identity.ProviderID)
	if errors.Is(err, store.ErrNotFound) {
		// an address Google has not verified never claims or creates an account
		if !identity.EmailVerified {
			s.audit(models.EventSigninFailure, meta, "", email, "google email not verified")
			return nil, apperr.New(apperr.KindUnauthorized, "Google email not verified", nil)
		}
		user, err = s.Store.FindActiveUserByEmail(ctx, email)
	}
	var profile *models.Profile
	switch {
	case err == nil:
		user, profile, err = s.linkGoogle(ctx, user, identity, firstName, lastName)
	case errors.Is(err, store.ErrNotFound):
		user, profile, err = s.createGoogleUser(ctx, email, identity, firstName, lastName)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperr.Conflict("Google account is already linked to another user")
		}
		return nil, err
	}

	res, err := s.issue(ctx, user, profile)
	if err != nil {
		return nil, err
	}
	s.audit(models.EventGoogleSignin, meta, user.ID.String(), email, "")
	return res, nil
}

type GoogleConsent struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// GoogleAuthURL returns the provider consent URL with a fresh state value.
// The frontend keeps the state and compares it on the callback.
func (s *AuthService) GoogleAuthURL() (*GoogleConsent, error) {
	state, err := utils.RandomToken(16)
	if err != nil {
		return nil, err
	}
	u := s.OAuth.AuthCodeURL(state)
	if u == "" {
		return nil, apperr.NotFound("Google sign-in is not configured")
	}
	return &GoogleConsent{URL: u, State: state}, nil
}

func (s *AuthService) linkGoogle(ctx context.Context, user *models.User, id *ProviderIdentity, firstName, lastName string) (*models.User, *models.Profile, error) {
	verified := true
	patch := models.UserPatch{GoogleID: &id.ProviderID, EmailVerified: &verified}
	if !user.HasPassword() {
		patch.IsOAuthUser = &verified
	}
	user, err := s.Store.UpdateUser(ctx, user.ID, patch)
	if err != nil {
		return nil, nil, err
	}

	pp := models.ProfilePatch{FirstName: &firstName, LastName: &lastName}
	current, err := s.profileFor(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		profile := &models.Profile{UserID: user.ID, FirstName: firstName, LastName: lastName, AvatarURL: id.PictureURL}
		if err := s.Store.InsertProfile(ctx, profile); err != nil {
			return nil, nil, err
		}
		return user, profile, nil
	}
	if current.AvatarURL == "" && id.PictureURL != "" {
		pp.AvatarURL = &id.PictureURL
	}
	profile, err := s.Store.UpdateProfile(ctx, user.ID, pp)
	if err != nil {
		return nil, nil, err
	}
	return user, profile, nil
}

func (s *AuthService) createGoogleUser(ctx context.Context, email string, id *ProviderIdentity, firstName, lastName string) (*models.User, *models.Profile, error) {
	googleID := id.ProviderID
	user := &models.User{Email: email, EmailVerified: true, IsOAuthUser: true, GoogleID: &googleID}
	profile := &models.Profile{FirstName: firstName, LastName: lastName, AvatarURL: id.PictureURL}
	if err := s.Store.CreateUserWithProfile(ctx, user, profile); err != nil {
		return nil, nil, err
	}
	return user, profile, nil
}

func (s *AuthService) RefreshToken(ctx context.Context, meta RequestMeta, refreshToken string) (*RefreshOutput, error) {
	if err := s.limit(ctx, s.cfg.Policies.Auth, ratelimit.ClientKey(meta.IP, meta.UserAgent), meta); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, apperr.Validation(msgValidationFailed, "Refresh token is required")
	}

	res, err := s.Tokens.Refresh(ctx, refreshToken)
	if err != nil {
		if apperr.Is(err, apperr.KindTokenInvalid) {
			return nil, apperr.TokenInvalid("Invalid refresh token", err)
		}
		return nil, err
	}
	if _, err := s.Store.FindActiveUserByID(ctx, res.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.TokenInvalid("Invalid refresh token", err)
		}
		return nil, err
	}
	return &RefreshOutput{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken}, nil
}

// Logout always succeeds from the caller's point of view. A valid refresh
// token is unregistered so it can no longer be redeemed.
func (s *AuthService) Logout(ctx context.Context, meta RequestMeta, refreshToken string) {
	if refreshToken == "" {
		return
	}
	userID, removed, err := s.Tokens.Revoke(ctx, refreshToken)
	if err != nil {
		if !apperr.Is(err, apperr.KindTokenInvalid) {
			s.Logger.Warn().Err(err).Msg("failed to revoke refresh token on logout")
		}
		return
	}
	if removed {
		s.audit(models.EventLogout, meta, userID.String(), "", "")
	}
}

func (s *AuthService) SendVerificationEmail(ctx context.Context, meta RequestMeta, userID uuid.UUID) error {
	if err := s.limit(ctx, s.cfg.Policies.Auth, ratelimit.ClientKey(meta.IP, meta.UserAgent), meta); err != nil {
		return err
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.limit(ctx, s.cfg.Policies.EmailVerification, ratelimit.EmailKey(user.Email), meta); err != nil {
		return err
	}
	if user.EmailVerified {
		return apperr.Validation("Email already verified")
	}

	token, err := s.newVerificationToken(ctx, user.ID)
	if err != nil {
		return err
	}
	firstName := ""
	if p, err := s.profileFor(ctx, user.ID); err == nil && p != nil {
		firstName = p.FirstName
	}
	mail := s.Templates.Verification(firstName, token)
	mail.To = user.Email
	s.sendAsync(mail)
	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, meta RequestMeta, token string) error {
	if err := s.limit(ctx, s.cfg.Policies.Strict, ratelimit.IPKey(meta.IP), meta); err != nil {
		return err
	}
	if token == "" {
		return apperr.Validation(msgValidationFailed, "Verification token is required")
	}

	rec, err := s.Store.FindVerificationToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.TokenInvalid("Invalid verification token", nil)
	} else if err != nil {
		return err
	}
	if rec.Expired(s.Now()) {
		_, _ = s.Store.DeleteVerificationToken(ctx, rec.ID)
		return apperr.TokenExpired("Verification token expired")
	}
	// whoever deletes the row owns the redemption
	removed, err := s.Store.DeleteVerificationToken(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.TokenInvalid("Invalid verification token", nil)
	}

	verified := true
	if _, err := s.Store.UpdateUser(ctx, rec.UserID, models.UserPatch{EmailVerified: &verified}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return err
	}
	s.audit(models.EventEmailVerified, meta, rec.UserID.String(), "", "")
	return nil
}

// ForgotPassword answers the same way whether or not the email belongs to
// an account.
func (s *AuthService) ForgotPassword(ctx context.Context, meta RequestMeta, rawEmail string) error {
	if err := s.limit(ctx, s.cfg.Policies.Auth, ratelimit.ClientKey(meta.IP, meta.UserAgent), meta); err != nil {
		return err
	}
	email := utils.NormalizeEmail(rawEmail)
	if err := utils.ValidateEmail(email); err != nil {
		return apperr.Validation(msgValidationFailed, err.Message)
	}
	if err := s.limit(ctx, s.cfg.Policies.PasswordReset, ratelimit.EmailKey(email), meta); err != nil {
		return err
	}

	user, err := s.Store.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	token, err := s.newResetToken(ctx, user.ID)
	if err != nil {
		return err
	}
	firstName := ""
	if p, err := s.profileFor(ctx, user.ID); err == nil && p != nil {
		firstName = p.FirstName
	}
	mail := s.Templates.PasswordReset(firstName, token)
	mail.To = user.Email
	s.sendAsync(mail)
	return nil
}

type ResetPasswordInput struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *AuthService) ResetPassword(ctx context.Context, meta RequestMeta, in ResetPasswordInput) error {
	if err := s.limit(ctx, s.cfg.Policies.Strict, ratelimit.IPKey(meta.IP), meta); err != nil {
		return err
	}
	var v utils.Validator
	if in.Token == "" {
		v.Add("token", "Reset token is required")
	}
	v.ValidatePassword("newPassword", in.NewPassword)
	if !v.Valid() {
		return apperr.Validation(msgValidationFailed, v.Messages()...)
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperr.Validation(msgPasswordsDontMatch, msgPasswordsDontMatch)
	}

	rec, err := s.Store.FindPasswordResetToken(ctx, in.Token)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.TokenInvalid("Invalid reset token", nil)
	} else if err != nil {
		return err
	}
	if rec.Expired(s.Now()) {
		_, _ = s.Store.DeletePasswordResetToken(ctx, rec.ID)
		return apperr.TokenExpired("Reset token expired")
	}
	removed, err := s.Store.DeletePasswordResetToken(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.TokenInvalid("Invalid reset token", nil)
	}

	digest, err := s.Hasher.Hash(ctx, in.NewPassword)
	if err != nil {
		return err
	}
	if _, err := s.Store.UpdateUser(ctx, rec.UserID, models.UserPatch{PasswordHash: &digest}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return err
	}
	// a reset means the old credentials may be compromised
	if err := s.Tokens.RevokeAll(ctx, rec.UserID); err != nil {
		s.Logger.Warn().Err(err).Str("user_id", rec.UserID.String()).Msg("failed to revoke refresh tokens after reset")
	}
	s.audit(models.EventPasswordReset, meta, rec.UserID.String(), "", "")
	return nil
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *AuthService) ChangePassword(ctx context.Context, meta RequestMeta, userID uuid.UUID, in ChangePasswordInput) error {
	if err := s.limit(ctx, s.cfg.Policies.Strict, ratelimit.IPKey(meta.IP), meta); err != nil {
		return err
	}
	var v utils.Validator
	if in.CurrentPassword == "" {
		v.Add("currentPassword", "Current password is required")
	}
	v.ValidatePassword("newPassword", in.NewPassword)
	if !v.Valid() {
		return apperr.Validation(msgValidationFailed, v.Messages()...)
	}

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() {
		return apperr.Validation(msgValidationFailed, "Invalid current password")
	}
	ok, err := s.Hasher.Verify(ctx, in.CurrentPassword, *user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation(msgValidationFailed, "Invalid current password")
	}
	if in.NewPassword != in.ConfirmPassword {
		return apperr.Validation(msgPasswordsDontMatch, msgPasswordsDontMatch)
	}

	digest, err := s.Hasher.Hash(ctx, in.NewPassword)
	if err != nil {
		return err
	}
	if _, err := s.Store.UpdateUser(ctx, userID, models.UserPatch{PasswordHash: &digest}); err != nil {
		return err
	}
	s.audit(models.EventPasswordChanged, meta, userID.String(), user.Email, "")
	return nil
}

func (s *AuthService) GetMe(ctx context.Context, userID uuid.UUID) (*AccountView, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profileFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AccountView{User: user, Profile: profile}, nil
}

// GetPublicProfile returns what anyone may see about a user. Profiles not
// marked public only expose name and avatar.
func (s *AuthService) GetPublicProfile(ctx context.Context, userID uuid.UUID) (*models.PublicProfile, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &models.PublicProfile{ID: user.ID, CreatedAt: user.CreatedAt}
	profile, err := s.profileFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		view.FirstName, view.LastName, view.AvatarURL = profile.FirstName, profile.LastName, profile.AvatarURL
		if profile.IsPublic {
			view.Bio, view.City, view.Country = profile.Bio, profile.City, profile.Country
		}
	}
	return view, nil
}

func sanitizePtr(p *string) {
	if p != nil {
		*p = utils.Sanitize(*p)
	}
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, patch models.ProfilePatch) (*models.Profile, error) {
	for _, p := range []*string{patch.FirstName, patch.LastName, patch.AvatarURL, patch.Bio, patch.Phone,
		patch.Gender, patch.Address, patch.City, patch.State, patch.Country, patch.PostalCode} {
		sanitizePtr(p)
	}

	var v utils.Validator
	if patch.FirstName != nil {
		v.Check(utils.ValidateName("firstName", "First name", *patch.FirstName))
	}
	if patch.LastName != nil {
		v.Check(utils.ValidateName("lastName", "Last name", *patch.LastName))
	}
	if patch.Bio != nil {
		v.Check(utils.ValidateBio(*patch.Bio))
	}
	if patch.AvatarURL != nil && *patch.AvatarURL != "" {
		if u, err := url.ParseRequestURI(*patch.AvatarURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.Add("avatarUrl", "Avatar URL must be a valid URL")
		}
	}
	if patch.DateOfBirth != nil && patch.DateOfBirth.After(s.Now()) {
		v.Add("dateOfBirth", "Date of birth must be in the past")
	}
	if !v.Valid() {
		return nil, apperr.Validation(msgValidationFailed, v.Messages()...)
	}

	if _, err := s.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	profile, err := s.Store.UpdateProfile(ctx, userID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Profile not found")
	}
	return profile, err
}

func (s *AuthService) UploadAvatar(ctx context.Context, userID uuid.UUID, file io.Reader) (*models.Profile, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return nil, err
	}
	avatarURL, err := s.Uploader.UploadAvatar(ctx, userID, file)
	if err != nil {
		if errors.Is(err, ErrAvatarTooLarge) || errors.Is(err, ErrAvatarType) {
			return nil, apperr.Validation(msgValidationFailed, err.Error())
		}
		return nil, err
	}
	profile, err := s.Store.UpdateProfile(ctx, userID, models.ProfilePatch{AvatarURL: &avatarURL})
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Profile not found")
	}
	return profile, err
}

// DeleteAccount soft-deletes the user, which also drops every refresh token.
func (s *AuthService) DeleteAccount(ctx context.Context, meta RequestMeta, userID uuid.UUID) error {
	if err := s.Store.SoftDeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return err
	}
	s.audit(models.EventAccountDeleted, meta, userID.String(), "", "")
	return nil
}
