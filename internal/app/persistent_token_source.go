package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/florianilch/keyprovider/internal/keyprovider"
	"github.com/florianilch/keyprovider/internal/secretsource"
)

// TokenSourceFactory creates an oauth2.TokenSource from a refresh token.
type TokenSourceFactory func(refreshToken string) oauth2.TokenSource

// PersistentTokenSource wraps an oauth2.TokenSource and writes every new
// refresh token it sees back to a secret store. The stored refresh token is
// read on the first Token call, not before.
type PersistentTokenSource struct {
	factory TokenSourceFactory
	store   secretsource.Store

	source func() (oauth2.TokenSource, error)

	persisted atomic.Pointer[string]
	writeMu   sync.Mutex
}

// Compile-time checks: PersistentTokenSource is a token source, and stored keys
// can back it.
var (
	_ oauth2.TokenSource = (*PersistentTokenSource)(nil)
	_ secretsource.Store = (*keyprovider.Secret)(nil)
)

// NewPersistentTokenSource creates a PersistentTokenSource. No I/O is
// performed until the first Token call.
func NewPersistentTokenSource(factory TokenSourceFactory, store secretsource.Store) (*PersistentTokenSource, error) {
	if factory == nil {
		return nil, fmt.Errorf("missing token source factory")
	}
	if store == nil {
		return nil, fmt.Errorf("missing refresh token store")
	}

	p := &PersistentTokenSource{
		factory: factory,
		store:   store,
	}
	p.source = sync.OnceValues(p.open)
	return p, nil
}

// open reads the stored refresh token and builds the wrapped source once.
func (p *PersistentTokenSource) open() (oauth2.TokenSource, error) {
	// oauth2.TokenSource.Token has no context parameter
	refreshToken, err := p.store.Read(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}

	p.persisted.Store(&refreshToken)
	return p.factory(refreshToken), nil
}

// Token returns a valid token, refreshing it when needed and persisting a
// rotated refresh token.
func (p *PersistentTokenSource) Token() (*oauth2.Token, error) {
	ts, err := p.source()
	if err != nil {
		return nil, err
	}

	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token from token source: %w", err)
	}

	if token.RefreshToken != "" && token.RefreshToken != p.lastPersisted() {
		p.persist(token.RefreshToken)
	}
	return token, nil
}

func (p *PersistentTokenSource) lastPersisted() string {
	if last := p.persisted.Load(); last != nil {
		return *last
	}
	return ""
}

// persist stores refreshToken. A failed write is logged, not returned: the
// access token is still good, and the next Token call retries the write.
func (p *PersistentTokenSource) persist(refreshToken string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if refreshToken == p.lastPersisted() {
		return
	}

	ctx := context.Background()
	if err := p.store.Write(ctx, refreshToken); err != nil {
		slog.ErrorContext(ctx, "failed to persist refresh token", "error", err)
		return
	}
	p.persisted.Store(&refreshToken)
}
