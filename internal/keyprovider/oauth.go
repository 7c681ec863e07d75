package keyprovider

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// Well-known key names stored for OAuth2 clients.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyRefreshToken = "refresh_token"
)

// OAuth2Config builds a client configuration from the stored client_id and
// client_secret of the provider and service. The secret may be absent, as it
// is for public clients.
func (p *Provider) OAuth2Config(ctx context.Context, provider, service string, endpoint oauth2.Endpoint, scopes ...string) (*oauth2.Config, error) {
	var clientID, clientSecret string

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := p.StoredKey(gCtx, provider, service, KeyClientID)
		if err != nil {
			return fmt.Errorf("client id: %w", err)
		}
		clientID = v
		return nil
	})
	g.Go(func() error {
		v, err := p.StoredKey(gCtx, provider, service, KeyClientSecret)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("client secret: %w", err)
		}
		clientSecret = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}, nil
}

// Secret is one stored key bound to a fixed scheme and scheme key, usable
// wherever a readable and writable secret is expected.
type Secret struct {
	p         *Provider
	id        Identity
	name      string
	scheme    string
	schemeKey string
}

// Secret returns a handle on name for the provider and service. Writes
// obscure the value with scheme and schemeKey.
func (p *Provider) Secret(provider, service, name, scheme, schemeKey string) *Secret {
	return &Secret{
		p:         p,
		id:        Identity{Provider: provider, Service: service},
		name:      name,
		scheme:    scheme,
		schemeKey: schemeKey,
	}
}

// Read returns the decoded value.
func (s *Secret) Read(ctx context.Context) (string, error) {
	return s.p.StoredKey(ctx, s.id.Provider, s.id.Service, s.name)
}

// Write obscures and stores value.
func (s *Secret) Write(ctx context.Context, value string) error {
	return s.p.EncodeAndStore(ctx, s.id.Provider, s.id.Service, s.name, value, s.scheme, s.schemeKey)
}
