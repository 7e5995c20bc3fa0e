package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-token-service/internal/config"
	"github.com/iliyamo/auth-token-service/internal/model"
	"github.com/iliyamo/auth-token-service/internal/queue"
	"github.com/iliyamo/auth-token-service/internal/repository"
	"github.com/iliyamo/auth-token-service/internal/utils"
)

// ----- in-memory fakes -----

type fakeUserStore struct {
	byID map[string]model.User
	seq  int
}

func newFakeUserStore() *fakeUserStore { return &fakeUserStore{byID: map[string]model.User{}} }

func (f *fakeUserStore) Create(_ context.Context, login, passwordHash string, metadata json.RawMessage) (model.User, error) {
	for _, u := range f.byID {
		if u.Login == login {
			return model.User{}, repository.ErrLoginExists
		}
	}
	f.seq++
	u := model.User{
		ID:           fmt.Sprintf("user-%d", f.seq),
		Login:        login,
		PasswordHash: passwordHash,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByLogin(_ context.Context, login string) (model.User, error) {
	for _, u := range f.byID {
		if u.Login == login {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) Delete(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeUserStore) List(_ context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

type fakeTokenStore struct {
	recs      map[string]string // token -> userID
	storeErr  error
	rotateErr error
}

func newFakeTokenStore() *fakeTokenStore { return &fakeTokenStore{recs: map[string]string{}} }

func (f *fakeTokenStore) Store(_ context.Context, token, userID string) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	if _, ok := f.recs[token]; ok {
		return repository.ErrDuplicateToken
	}
	f.recs[token] = userID
	return nil
}

func (f *fakeTokenStore) Find(_ context.Context, token string) (model.RefreshTokenRecord, error) {
	uid, ok := f.recs[token]
	if !ok {
		return model.RefreshTokenRecord{}, repository.ErrNotFound
	}
	return model.RefreshTokenRecord{Token: token, UserID: uid}, nil
}

func (f *fakeTokenStore) Delete(_ context.Context, token string) error {
	delete(f.recs, token)
	return nil
}

func (f *fakeTokenStore) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for tok, uid := range f.recs {
		if uid == userID {
			delete(f.recs, tok)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenStore) Rotate(_ context.Context, oldToken, newToken, userID string) error {
	if f.rotateErr != nil {
		return f.rotateErr
	}
	if _, ok := f.recs[oldToken]; !ok {
		return repository.ErrTokenRotated
	}
	delete(f.recs, oldToken)
	f.recs[newToken] = userID
	return nil
}

func (f *fakeTokenStore) countForUser(userID string) int {
	n := 0
	for _, uid := range f.recs {
		if uid == userID {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	events []queue.SecurityWipeEvent
}

func (f *fakePublisher) PublishSecurityWipe(_ context.Context, ev queue.SecurityWipeEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// ----- helpers -----

const (
	testAccessSecret  = "access-secret"
	testRefreshSecret = "refresh-secret"
)

func newTestService() (*AuthService, *fakeUserStore, *fakeTokenStore, *fakePublisher) {
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	events := &fakePublisher{}
	cfg := config.Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
	return NewAuthService(cfg, users, tokens, events), users, tokens, events
}

func createAlice(t *testing.T, svc *AuthService) PublicUser {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), "alice", "p@ss1", json.RawMessage(`{"plan":"pro"}`))
	require.NoError(t, err)
	return *u
}

// expiredRefreshToken mints a refresh-domain token whose expiry has already
// passed.
func expiredRefreshToken(t *testing.T, u PublicUser) string {
	t.Helper()
	tok, err := utils.IssueToken(u.ID, u.Login, u.Metadata, testRefreshSecret, -time.Minute)
	require.NoError(t, err)
	return tok
}

// ----- login -----

func TestLogin_UnknownLoginAndWrongPasswordLookIdentical(t *testing.T) {
	svc, _, _, _ := newTestService()
	createAlice(t, svc)
	ctx := context.Background()

	_, errUnknown := svc.Login(ctx, "nobody", "p@ss1", "")
	_, errWrongPw := svc.Login(ctx, "alice", "wrong", "")

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	require.Equal(t, errUnknown, errWrongPw)
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _, tokens, _ := newTestService()

	_, err := svc.Login(context.Background(), "", "p@ss1", "")
	require.ErrorIs(t, err, ErrMissingFields)
	_, err = svc.Login(context.Background(), "alice", "", "")
	require.ErrorIs(t, err, ErrMissingFields)
	require.Empty(t, tokens.recs)
}

func TestLogin_IssuesVerifiablePairAndStoresRefresh(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	alice := createAlice(t, svc)

	res, err := svc.Login(context.Background(), "alice", "p@ss1", "")
	require.NoError(t, err)
	require.Equal(t, alice.ID, res.User.ID)
	require.Equal(t, "alice", res.User.Login)

	claims, err := utils.VerifyToken(res.AccessToken, testAccessSecret)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.UserID)

	require.Equal(t, alice.ID, tokens.recs[res.RefreshToken])
}

func TestLogin_RetiresPresentedRefreshToken(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	createAlice(t, svc)
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)

	second, err := svc.Login(ctx, "alice", "p@ss1", first.RefreshToken)
	require.NoError(t, err)

	_, ok := tokens.recs[first.RefreshToken]
	require.False(t, ok, "old refresh token should be retired on re-login")
	require.Contains(t, tokens.recs, second.RefreshToken)
}

func TestLogin_StoreFailureIsFatal(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	createAlice(t, svc)
	tokens.storeErr = fmt.Errorf("disk on fire")

	_, err := svc.Login(context.Background(), "alice", "p@ss1", "")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
	require.Empty(t, tokens.recs, "no token must be issued without a durable record")
}

// ----- authenticate -----

func TestAuthenticate(t *testing.T) {
	svc, _, _, _ := newTestService()
	alice := createAlice(t, svc)

	res, err := svc.Login(context.Background(), "alice", "p@ss1", "")
	require.NoError(t, err)

	claims, err := svc.Authenticate(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.UserID)

	expired, err := utils.IssueToken(alice.ID, alice.Login, nil, testAccessSecret, -time.Minute)
	require.NoError(t, err)
	_, err = svc.Authenticate(expired)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate("garbage")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate("")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

// ----- refresh -----

func TestRefresh_ValidAndPresent_AccessOnly(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)

	res, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.False(t, res.Rotated)
	require.Empty(t, res.RefreshToken, "still-valid refresh must not rotate")

	claims, err := utils.VerifyToken(res.AccessToken, testAccessSecret)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.UserID)

	// The presented token remains valid and stored.
	require.Contains(t, tokens.recs, login.RefreshToken)
}

func TestRefresh_ValidButAbsent_WipesAllSessions(t *testing.T) {
	svc, _, tokens, events := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	// Two live sessions.
	_, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)
	require.Equal(t, 2, tokens.countForUser(alice.ID))

	// Signature-valid, unexpired, but never stored: reuse or tampering.
	stray, err := utils.IssueToken(alice.ID, alice.Login, nil, testRefreshSecret, time.Hour)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, stray)
	require.ErrorIs(t, err, ErrSessionRevoked)
	require.Zero(t, tokens.countForUser(alice.ID), "every session must be revoked")

	require.Len(t, events.events, 1)
	require.Equal(t, "valid_unknown", events.events[0].Reason)
	require.Equal(t, alice.ID, events.events[0].UserID)
}

func TestRefresh_ExpiredAndPresent_RotatesPair(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	old := expiredRefreshToken(t, alice)
	tokens.recs[old] = alice.ID

	res, err := svc.Refresh(ctx, old)
	require.NoError(t, err)
	require.True(t, res.Rotated)
	require.NotEmpty(t, res.RefreshToken)
	require.NotEqual(t, old, res.RefreshToken)

	_, ok := tokens.recs[old]
	require.False(t, ok, "rotated-away token must be gone from the store")
	require.Equal(t, alice.ID, tokens.recs[res.RefreshToken])

	claims, err := utils.VerifyToken(res.RefreshToken, testRefreshSecret)
	require.NoError(t, err)
	require.Equal(t, alice.ID, claims.UserID)
}

func TestRefresh_ExpiredAndAbsent_WipesAllSessions(t *testing.T) {
	svc, _, tokens, events := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)
	require.Equal(t, 1, tokens.countForUser(alice.ID))

	_, err = svc.Refresh(ctx, expiredRefreshToken(t, alice))
	require.ErrorIs(t, err, ErrSessionRevoked)
	require.Zero(t, tokens.countForUser(alice.ID))

	require.Len(t, events.events, 1)
	require.Equal(t, "expired_unknown", events.events[0].Reason)
}

func TestRefresh_InvalidSignature_ForbiddenWithoutStoreMutation(t *testing.T) {
	svc, _, tokens, events := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)

	forged, err := utils.IssueToken(alice.ID, alice.Login, nil, "attacker-secret", time.Hour)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, forged)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Refresh(ctx, "not.a.jwt")
	require.ErrorIs(t, err, ErrForbidden)

	require.Contains(t, tokens.recs, login.RefreshToken, "forged tokens must not touch the store")
	require.Empty(t, events.events)
}

func TestRefresh_ConcurrentRotationLosesWithConflict(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	alice := createAlice(t, svc)

	old := expiredRefreshToken(t, alice)
	tokens.recs[old] = alice.ID
	// The other rotation wins between the presence check and the swap.
	tokens.rotateErr = repository.ErrTokenRotated

	_, err := svc.Refresh(context.Background(), old)
	require.ErrorIs(t, err, ErrRotationConflict)
}

func TestRefresh_MissingToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingFields)
}

// ----- logout -----

func TestLogout_RemovesExactlyThatRecord(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	createAlice(t, svc)
	ctx := context.Background()

	first, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, first.RefreshToken))

	_, ok := tokens.recs[first.RefreshToken]
	require.False(t, ok)
	require.Contains(t, tokens.recs, second.RefreshToken, "other sessions must survive logout")
}

func TestLogout_MissingTokenRejected(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	err := svc.Logout(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingFields)
	require.Empty(t, tokens.recs)
}

func TestLogout_UnknownTokenIsIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService()
	require.NoError(t, svc.Logout(context.Background(), "never-stored"))
}

// ----- user admin -----

func TestCreateUser_DuplicateLogin(t *testing.T) {
	svc, _, _, _ := newTestService()
	createAlice(t, svc)

	_, err := svc.CreateUser(context.Background(), "alice", "other", nil)
	require.ErrorIs(t, err, ErrLoginExists)
}

func TestDeleteUser_CascadesRefreshTokens(t *testing.T) {
	svc, users, tokens, events := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, alice.ID))

	_, err = users.GetByID(ctx, alice.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.Zero(t, tokens.countForUser(alice.ID), "no token may outlive its user")

	require.Len(t, events.events, 1)
	require.Equal(t, "user_deleted", events.events[0].Reason)
}

func TestDeleteUser_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	err := svc.DeleteUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsers_OmitsCredentialHash(t *testing.T) {
	svc, _, _, _ := newTestService()
	createAlice(t, svc)

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "alice", users[0].Login)
	require.JSONEq(t, `{"plan":"pro"}`, string(users[0].Metadata))
}

// The documented scenario end to end: immediate refresh renews only the
// access token; an expiry-forced refresh rotates the pair.
func TestRefresh_ScenarioAccessOnlyThenRotation(t *testing.T) {
	svc, _, tokens, _ := newTestService()
	alice := createAlice(t, svc)
	ctx := context.Background()

	login, err := svc.Login(ctx, "alice", "p@ss1", "")
	require.NoError(t, err)

	immediate, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.Empty(t, immediate.RefreshToken)
	require.Contains(t, tokens.recs, login.RefreshToken)

	// Simulate the wait: swap the stored record for an expired twin.
	delete(tokens.recs, login.RefreshToken)
	old := expiredRefreshToken(t, alice)
	tokens.recs[old] = alice.ID

	rotated, err := svc.Refresh(ctx, old)
	require.NoError(t, err)
	require.True(t, rotated.Rotated)
	require.NotContains(t, tokens.recs, old)
	require.Contains(t, tokens.recs, rotated.RefreshToken)
}
