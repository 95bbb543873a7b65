//go:generate go run go.uber.org/mock/mockgen -source=resolver.go -destination=mock/resolver.go
package client

import (
	"context"
	"strings"

	"github.com/totegamma/concurrent-client/core"
)

// EntityGetter looks up an address's entity record.
type EntityGetter interface {
	GetEntity(ctx context.Context, ccaddr string) (core.Entity, error)
}

// Resolver decides which host serves a given identifier.
type Resolver struct {
	home   string
	entity EntityGetter
}

// NewResolver creates a new resolver. home is the session's home host.
func NewResolver(home string, entity EntityGetter) *Resolver {
	return &Resolver{home: home, entity: entity}
}

// ResolveHost resolves a host for an identifier. An explicit host wins;
// otherwise an @-suffix on the identifier; otherwise the home host.
// An empty result fails before any network call is attempted.
func (r *Resolver) ResolveHost(id string, explicit string) (string, error) {
	host := explicit
	if host == "" {
		if _, suffix, found := strings.Cut(id, "@"); found {
			host = suffix
		}
	}
	if host == "" {
		host = r.home
	}
	if host == "" {
		return "", core.NewErrorHostUnresolved()
	}
	return host, nil
}

// ResolveEntityHost finds an address's home host via its entity record,
// falling back to the local home host when the lookup yields nothing.
func (r *Resolver) ResolveEntityHost(ctx context.Context, ccaddr string) (string, error) {
	entity, err := r.entity.GetEntity(ctx, ccaddr)
	if err != nil && !core.IsNotFound(err) {
		return "", err
	}

	host := entity.Host
	if host == "" {
		host = r.home
	}
	if host == "" {
		return "", core.NewErrorHostUnresolved()
	}
	return host, nil
}

// splitStreamID separates a stream identifier into its key and host
// parts. A bare id resolves to the home host.
func (r *Resolver) splitStreamID(id string) (string, string, error) {
	key, host, found := strings.Cut(id, "@")
	if !found || host == "" {
		host = r.home
	}
	if host == "" {
		return "", "", core.NewErrorHostUnresolved()
	}
	return key, host, nil
}
