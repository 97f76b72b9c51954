package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/store"
)

type fakeSession struct {
	broker.Session

	refreshErr error
	authErr    error

	refreshed     bool
	authenticated bool
	selected      string
	accounts      []broker.Account
}

func (f *fakeSession) Refresh(ctx context.Context, token string) (broker.TokenPair, error) {
	f.refreshed = true
	if f.refreshErr != nil {
		return broker.TokenPair{}, f.refreshErr
	}
	return broker.TokenPair{AccessToken: "access-refreshed", RefreshToken: "refresh-rotated"}, nil
}

func (f *fakeSession) Authenticate(ctx context.Context) (broker.TokenPair, error) {
	f.authenticated = true
	if f.authErr != nil {
		return broker.TokenPair{}, f.authErr
	}
	return broker.TokenPair{AccessToken: "access-login", RefreshToken: "refresh-login"}, nil
}

func (f *fakeSession) ListAccounts(ctx context.Context) ([]broker.Account, error) {
	return f.accounts, nil
}

func (f *fakeSession) SelectAccount(ctx context.Context, accountID string) error {
	for _, a := range f.accounts {
		if a.ID == accountID {
			f.selected = accountID
			return nil
		}
	}
	return errors.New("account not found")
}

type fakeCreds struct {
	stored map[string]store.AccountCredentials
	saved  []store.AccountCredentials
}

func (f *fakeCreds) Credentials(ctx context.Context, userID, brokerCode string) (store.AccountCredentials, error) {
	creds, ok := f.stored[userID+"|"+brokerCode]
	if !ok {
		return store.AccountCredentials{}, store.ErrNotFound
	}
	return creds, nil
}

func (f *fakeCreds) SaveCredentials(ctx context.Context, creds store.AccountCredentials) error {
	f.saved = append(f.saved, creds)
	return nil
}

func testIdentity() Identity {
	return Identity{UserID: "U1", Broker: "tradelocker", Email: "trader@example.com", Server: "DEMO-1"}
}

func TestResolveCachedSession(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	cached := &fakeSession{}
	registry.Put(testIdentity(), cached)

	r := NewResolver(registry, &fakeCreds{}, nil, nil)
	sess, err := r.Resolve(context.Background(), testIdentity())
	require.NoError(t, err)
	assert.Same(t, broker.Session(cached), sess)
	assert.False(t, cached.refreshed)
	assert.False(t, cached.authenticated)
}

func TestResolveViaRefreshToken(t *testing.T) {
	t.Parallel()

	id := testIdentity()
	creds := &fakeCreds{stored: map[string]store.AccountCredentials{
		"U1|tradelocker": {UserID: "U1", Broker: "tradelocker", RefreshToken: "refresh-old", AccountID: "800123"},
	}}
	fresh := &fakeSession{}
	registry := NewRegistry()

	r := NewResolver(registry, creds, func(store.AccountCredentials) broker.Session { return fresh }, nil)
	sess, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Same(t, broker.Session(fresh), sess)
	assert.True(t, fresh.refreshed)
	assert.False(t, fresh.authenticated, "refresh succeeded, no login needed")

	// rotated tokens persisted
	require.NotEmpty(t, creds.saved)
	assert.Equal(t, "refresh-rotated", creds.saved[len(creds.saved)-1].RefreshToken)

	// and the session is now cached
	cached, ok := registry.Get(id)
	require.True(t, ok)
	assert.Same(t, broker.Session(fresh), cached)
}

func TestResolveFallsBackToLogin(t *testing.T) {
	t.Parallel()

	id := testIdentity()
	creds := &fakeCreds{stored: map[string]store.AccountCredentials{
		"U1|tradelocker": {UserID: "U1", Broker: "tradelocker", RefreshToken: "refresh-expired", AccountID: "800456"},
	}}
	fresh := &fakeSession{
		refreshErr: &broker.AuthError{Op: "refresh"},
		accounts: []broker.Account{
			{ID: "800123", Number: 1},
			{ID: "800456", Number: 2},
		},
	}

	r := NewResolver(NewRegistry(), creds, func(store.AccountCredentials) broker.Session { return fresh }, nil)
	_, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, fresh.refreshed)
	assert.True(t, fresh.authenticated)
	assert.Equal(t, "800456", fresh.selected, "stored account preferred")
}

func TestResolveNoStoredCredentials(t *testing.T) {
	t.Parallel()

	r := NewResolver(NewRegistry(), &fakeCreds{}, nil, nil)
	_, err := r.Resolve(context.Background(), testIdentity())
	assert.ErrorIs(t, err, broker.ErrNoActiveSession)
}

func TestResolveRejectedCredentials(t *testing.T) {
	t.Parallel()

	creds := &fakeCreds{stored: map[string]store.AccountCredentials{
		"U1|tradelocker": {UserID: "U1", Broker: "tradelocker"},
	}}
	fresh := &fakeSession{authErr: &broker.AuthError{Op: "login"}}

	r := NewResolver(NewRegistry(), creds, func(store.AccountCredentials) broker.Session { return fresh }, nil)
	_, err := r.Resolve(context.Background(), testIdentity())
	assert.ErrorIs(t, err, broker.ErrNoActiveSession)
}

func TestInvalidateEvicts(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	id := testIdentity()
	registry.Put(id, &fakeSession{})
	require.Equal(t, 1, registry.Len())

	r := NewResolver(registry, &fakeCreds{}, nil, nil)
	r.Invalidate(id)
	assert.Equal(t, 0, registry.Len())
}
