package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AnshRaj112/serenify-auth/internal/models"
)

// Memory is an in-process Store used by tests and local runs without
// Postgres. It enforces the same uniqueness rules as the schema.
type Memory struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*models.User
	profiles      map[uuid.UUID]*models.Profile
	verifications map[uuid.UUID]*models.EmailVerificationToken
	resets        map[uuid.UUID]*models.PasswordResetToken
	now           func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[uuid.UUID]*models.User),
		profiles:      make(map[uuid.UUID]*models.Profile),
		verifications: make(map[uuid.UUID]*models.EmailVerificationToken),
		resets:        make(map[uuid.UUID]*models.PasswordResetToken),
		now:           time.Now,
	}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.RefreshTokens = append([]string(nil), u.RefreshTokens...)
	return &c
}

func cloneProfile(p *models.Profile) *models.Profile {
	c := *p
	return &c
}

func (m *Memory) activeByEmail(email string) *models.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.DeletedAt == nil && strings.ToLower(u.Email) == email {
			return u
		}
	}
	return nil
}

func (m *Memory) activeByGoogleID(id string) *models.User {
	for _, u := range m.users {
		if u.DeletedAt == nil && u.GoogleID != nil && *u.GoogleID == id {
			return u
		}
	}
	return nil
}

func (m *Memory) active(id uuid.UUID) *models.User {
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil
	}
	return u
}

func (m *Memory) FindActiveUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.activeByEmail(email); u != nil {
		return cloneUser(u), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) FindActiveUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.active(id); u != nil {
		return cloneUser(u), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) FindActiveUserByProviderID(_ context.Context, providerID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.activeByGoogleID(providerID); u != nil {
		return cloneUser(u), nil
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateUserWithProfile(_ context.Context, user *models.User, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeByEmail(user.Email) != nil {
		return ErrConflict
	}
	if user.GoogleID != nil && m.activeByGoogleID(*user.GoogleID) != nil {
		return ErrConflict
	}

	now := m.now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	if user.RefreshTokens == nil {
		user.RefreshTokens = []string{}
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.UserID = user.ID
	profile.CreatedAt, profile.UpdatedAt = now, now

	m.users[user.ID] = cloneUser(user)
	m.profiles[user.ID] = cloneProfile(profile)
	return nil
}

func (m *Memory) UpdateUser(_ context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.active(id)
	if u == nil {
		return nil, ErrNotFound
	}
	if patch.GoogleID != nil {
		if other := m.activeByGoogleID(*patch.GoogleID); other != nil && other.ID != id {
			return nil, ErrConflict
		}
		gid := *patch.GoogleID
		u.GoogleID = &gid
	}
	if patch.PasswordHash != nil {
		h := *patch.PasswordHash
		u.PasswordHash = &h
	}
	if patch.EmailVerified != nil {
		u.EmailVerified = *patch.EmailVerified
	}
	if patch.IsOAuthUser != nil {
		u.IsOAuthUser = *patch.IsOAuthUser
	}
	u.UpdatedAt = m.now().UTC()
	return cloneUser(u), nil
}

func (m *Memory) SoftDeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.active(id)
	if u == nil {
		return ErrNotFound
	}
	now := m.now().UTC()
	u.DeletedAt = &now
	u.UpdatedAt = now
	u.RefreshTokens = []string{}
	return nil
}

func (m *Memory) InsertProfile(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.UserID]; ok {
		return ErrConflict
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	now := m.now().UTC()
	profile.CreatedAt, profile.UpdatedAt = now, now
	m.profiles[profile.UserID] = cloneProfile(profile)
	return nil
}

func (m *Memory) FindProfileByUserID(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (m *Memory) UpdateProfile(_ context.Context, userID uuid.UUID, patch models.ProfilePatch) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(p)
	p.UpdatedAt = m.now().UTC()
	return cloneProfile(p), nil
}

func (m *Memory) InsertVerificationToken(_ context.Context, t *models.EmailVerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.verifications {
		if existing.Token == t.Token {
			return ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = m.now().UTC()
	c := *t
	m.verifications[t.ID] = &c
	return nil
}

func (m *Memory) FindVerificationToken(_ context.Context, token string) (*models.EmailVerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.verifications {
		if t.Token == token {
			c := *t
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DeleteVerificationToken(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verifications[id]; !ok {
		return false, nil
	}
	delete(m.verifications, id)
	return true, nil
}

func (m *Memory) DeleteExpiredVerificationTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.verifications {
		if t.ExpiresAt.Before(now) {
			delete(m.verifications, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertPasswordResetToken(_ context.Context, t *models.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.resets {
		if existing.Token == t.Token {
			return ErrConflict
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = m.now().UTC()
	c := *t
	m.resets[t.ID] = &c
	return nil
}

func (m *Memory) FindPasswordResetToken(_ context.Context, token string) (*models.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.resets {
		if t.Token == token {
			c := *t
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) DeletePasswordResetToken(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resets[id]; !ok {
		return false, nil
	}
	delete(m.resets, id)
	return true, nil
}

func (m *Memory) DeleteExpiredPasswordResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.resets {
		if t.ExpiresAt.Before(now) {
			delete(m.resets, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) AddRefreshToken(_ context.Context, userID uuid.UUID, tokenID string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.active(userID)
	if u == nil {
		return ErrNotFound
	}
	u.RefreshTokens = append(u.RefreshTokens, tokenID)
	if keep > 0 && len(u.RefreshTokens) > keep {
		u.RefreshTokens = append([]string(nil), u.RefreshTokens[len(u.RefreshTokens)-keep:]...)
	}
	return nil
}

func (m *Memory) RemoveRefreshToken(_ context.Context, userID uuid.UUID, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	for i, id := range u.RefreshTokens {
		if id == tokenID {
			u.RefreshTokens = append(u.RefreshTokens[:i:i], u.RefreshTokens[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasRefreshToken(_ context.Context, userID uuid.UUID, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.active(userID)
	if u == nil {
		return false, nil
	}
	for _, id := range u.RefreshTokens {
		if id == tokenID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ClearRefreshTokens(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.RefreshTokens = []string{}
	}
	return nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
