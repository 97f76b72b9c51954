package session

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/verstige-os/copydesk/broker"
	"github.com/verstige-os/copydesk/store"
)

// CredentialSource is the slice of store.Store the resolver needs.
type CredentialSource interface {
	Credentials(ctx context.Context, userID, brokerCode string) (store.AccountCredentials, error)
	SaveCredentials(ctx context.Context, creds store.AccountCredentials) error
}

// Factory builds a fresh, unauthenticated session for a broker login.
// Tokens and account seed the session so a refresh can be tried before
// a full login.
type Factory func(creds store.AccountCredentials) broker.Session

// Resolver produces a usable session for an identity, trying the
// cheapest strategy first: registry hit, then stored refresh token,
// then full credential login. Every strategy failing means the user
// must reconnect the account.
type Resolver struct {
	registry *Registry
	creds    CredentialSource
	factory  Factory
	log      *log.Logger
}

func NewResolver(registry *Registry, creds CredentialSource, factory Factory, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Resolver{registry: registry, creds: creds, factory: factory, log: logger}
}

// Resolve returns a live session for the identity.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (broker.Session, error) {
	if sess, ok := r.registry.Get(id); ok {
		return sess, nil
	}

	stored, err := r.creds.Credentials(ctx, id.UserID, id.Broker)
	if errors.Is(err, store.ErrNotFound) {
		return nil, broker.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials for %s: %w", id.UserID, err)
	}

	sess := r.factory(stored)

	// A stored refresh token saves the login round trip when it still
	// works; a rejected one just falls through to the full login.
	if stored.RefreshToken != "" {
		pair, err := sess.Refresh(ctx, stored.RefreshToken)
		if err == nil {
			r.persistTokens(ctx, stored, pair)
			r.registry.Put(id, sess)
			return sess, nil
		}
		if !broker.IsAuth(err) {
			return nil, fmt.Errorf("refresh session for %s: %w", id.UserID, err)
		}
		r.log.WithFields(log.Fields{"user": id.UserID, "broker": id.Broker}).
			Debug("refresh token rejected, falling back to login")
	}

	pair, err := sess.Authenticate(ctx)
	if err != nil {
		if broker.IsAuth(err) {
			r.log.WithFields(log.Fields{"user": id.UserID, "broker": id.Broker}).
				Warn("stored credentials rejected")
			return nil, broker.ErrNoActiveSession
		}
		return nil, fmt.Errorf("authenticate %s: %w", id.UserID, err)
	}

	if err := r.selectAccount(ctx, sess, stored); err != nil {
		return nil, err
	}

	r.persistTokens(ctx, stored, pair)
	r.registry.Put(id, sess)
	return sess, nil
}

// Invalidate drops the cached session after an auth failure so the
// next Resolve rebuilds it from scratch.
func (r *Resolver) Invalidate(id Identity) {
	r.registry.Evict(id)
}

func (r *Resolver) selectAccount(ctx context.Context, sess broker.Session, stored store.AccountCredentials) error {
	if stored.AccountID != "" {
		if err := sess.SelectAccount(ctx, stored.AccountID); err == nil {
			return nil
		}
		r.log.WithField("account", stored.AccountID).
			Warn("stored account unavailable, selecting first listed")
	}

	accounts, err := sess.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts under login %s", stored.Email)
	}
	return sess.SelectAccount(ctx, accounts[0].ID)
}

func (r *Resolver) persistTokens(ctx context.Context, stored store.AccountCredentials, pair broker.TokenPair) {
	stored.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		stored.RefreshToken = pair.RefreshToken
	}
	if err := r.creds.SaveCredentials(ctx, stored); err != nil {
		// worst case the next resolve does a full login again
		r.log.WithError(err).Warn("persisting rotated tokens failed")
	}
}
