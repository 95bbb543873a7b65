//go:generate go run go.uber.org/mock/mockgen -source=client.go -destination=mock/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/totegamma/concurrent-client/cache"
	"github.com/totegamma/concurrent-client/core"
	"github.com/totegamma/concurrent-client/jwt"
	"github.com/totegamma/concurrent-client/util"
)

const (
	defaultTimeout = 10 * time.Second
)

var tracer = otel.Tracer("client")

// Client is the single point of truth for all read/write operations
// against concurrent API hosts.
type Client interface {
	EntityGetter

	CreateMessage(ctx context.Context, schema string, body any, streams []string) (CreateResponse, error)
	GetMessage(ctx context.Context, id string, host string) (core.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	InvalidateMessage(id string)

	CreateAssociation(ctx context.Context, schema string, body any, target string, targetType string, streams []string, host string) (CreateResponse, error)
	GetAssociation(ctx context.Context, id string, host string) (core.Association, error)
	DeleteAssociation(ctx context.Context, id string, host string) error

	UpsertCharacter(ctx context.Context, schema string, body any, id string) (core.Character, error)
	GetCharacter(ctx context.Context, author string, schema string, host string) (core.Character, error)

	CreateStream(ctx context.Context, schema string, body any, maintainer []string, writer []string, reader []string) (CreateResponse, error)
	UpdateStream(ctx context.Context, id string, schema string, body any, maintainer []string, writer []string, reader []string) (CreateResponse, error)
	GetStream(ctx context.Context, id string) (core.Stream, error)
	ListStreamBySchema(ctx context.Context, schema string, remote string) ([]core.Stream, error)
	GetStreamRecent(ctx context.Context, streams []string) ([]core.StreamElement, error)
	GetStreamRanged(ctx context.Context, streams []string, until string, since string) ([]core.StreamElement, error)

	GetUserHomeStreams(ctx context.Context, users []string) ([]string, error)
	SetupUserstreams(ctx context.Context) error

	GetHost(ctx context.Context, remote string) (core.Host, error)
	ListHosts(ctx context.Context) ([]core.Host, error)

	ResolveHost(id string, explicit string) (string, error)
	ResolveEntityHost(ctx context.Context, ccaddr string) (string, error)
}

type client struct {
	conf     util.Session
	http     *http.Client
	resolver *Resolver

	messages     *cache.Store[core.Message]
	associations *cache.Store[core.Association]
	characters   *cache.Store[core.Character]
	streams      *cache.Store[core.Stream]
	entities     cache.Cache[core.Entity]
}

// NewClient creates a new client for one user session. All caches are
// owned by the returned instance so multiple sessions can coexist in
// one process. mc is optional; when given, entity records are shared
// through memcached.
func NewClient(conf util.Config, mc *memcache.Client) Client {
	session := conf.Session
	if session.Scheme == "" {
		session.Scheme = "https"
	}

	var entities cache.Cache[core.Entity]
	if mc != nil {
		entities = cache.NewMemcachedStore[core.Entity]("entity", mc, "ccent:")
	} else {
		entities = cache.NewStore[core.Entity]("entity")
	}

	c := &client{
		conf: session,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(newMetricsTransport(http.DefaultTransport)),
		},
		messages:     cache.NewStore[core.Message]("message"),
		associations: cache.NewStore[core.Association]("association"),
		characters:   cache.NewStore[core.Character]("character"),
		streams:      cache.NewStore[core.Stream]("stream"),
		entities:     entities,
	}
	c.resolver = NewResolver(session.Host, c)

	return c
}

// ResolveHost implements host resolution. See Resolver.
func (c *client) ResolveHost(id string, explicit string) (string, error) {
	return c.resolver.ResolveHost(id, explicit)
}

// ResolveEntityHost implements entity host resolution. See Resolver.
func (c *client) ResolveEntityHost(ctx context.Context, ccaddr string) (string, error) {
	return c.resolver.ResolveEntityHost(ctx, ccaddr)
}

// CreateMessage builds, signs and posts a message envelope to the home
// host. The cache entry for the new id is intentionally not touched:
// a previously fetched copy stays visible until invalidated.
func (c *client) CreateMessage(ctx context.Context, schema string, body any, streams []string) (CreateResponse, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateMessage")
	defer span.End()

	if err := c.requireSession(); err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	object := core.NewSignedObject(c.conf.CCAddr, "message", schema, body)
	document, signature, err := core.Seal(object, c.conf.PrivateKey)
	if err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	request := postMessageRequest{
		SignedObject: document,
		Signature:    signature,
		Streams:      streams,
	}

	var response CreateResponse
	err = c.do(ctx, http.MethodPost, c.conf.Host, "/api/v1/messages", request, &response, true)
	if err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	return response, nil
}

// GetMessage returns a message by id, cache-checked. A response without
// a payload is reported as core.ErrorNotFound.
func (c *client) GetMessage(ctx context.Context, id string, host string) (core.Message, error) {
	ctx, span := tracer.Start(ctx, "Client.GetMessage")
	defer span.End()

	resolved, err := c.resolver.ResolveHost(id, host)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, err
	}

	return c.messages.GetOrFetch(ctx, id, func(ctx context.Context) (core.Message, error) {
		var message core.Message
		err := c.do(ctx, http.MethodGet, resolved, "/api/v1/messages/"+id, nil, &message, false)
		if err != nil {
			span.RecordError(err)
			return core.Message{}, err
		}
		if message.Payload == "" {
			return core.Message{}, core.NewErrorNotFound()
		}
		return message, nil
	})
}

// DeleteMessage deletes a message on the home host and evicts it from
// the cache. Associations pointing at it are not cascaded.
func (c *client) DeleteMessage(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Client.DeleteMessage")
	defer span.End()

	if err := c.requireSession(); err != nil {
		span.RecordError(err)
		return err
	}

	err := c.do(ctx, http.MethodDelete, c.conf.Host, "/api/v1/messages", deleteRequest{ID: id}, nil, true)
	if err != nil {
		span.RecordError(err)
		return err
	}

	c.messages.Invalidate(id)
	return nil
}

// InvalidateMessage evicts a message from the cache.
func (c *client) InvalidateMessage(id string) {
	c.messages.Invalidate(id)
}

// CreateAssociation builds, signs and posts an association envelope.
// The target's cached association list is stale after this call; the
// caller decides when to re-fetch.
func (c *client) CreateAssociation(ctx context.Context, schema string, body any, target string, targetType string, streams []string, host string) (CreateResponse, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateAssociation")
	defer span.End()

	if err := c.requireSession(); err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	resolved, err := c.resolver.ResolveHost(target, host)
	if err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	object := core.NewSignedObject(c.conf.CCAddr, "association", schema, body)
	object.Target = target
	document, signature, err := core.Seal(object, c.conf.PrivateKey)
	if err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	request := postAssociationRequest{
		SignedObject: document,
		Signature:    signature,
		Streams:      streams,
		TargetType:   targetType,
	}

	var response CreateResponse
	err = c.do(ctx, http.MethodPost, resolved, "/api/v1/associations", request, &response, true)
	if err != nil {
		span.RecordError(err)
		return CreateResponse{}, err
	}

	return response, nil
}

// GetAssociation returns an association by id, cache-checked.
func (c *client) GetAssociation(ctx context.Context, id string, host string) (core.Association, error) {
	ctx, span := tracer.Start(ctx, "Client.GetAssociation")
	defer span.End()

	resolved, err := c.resolver.ResolveHost(id, host)
	if err != nil {
		span.RecordError(err)
		return core.Association{}, err
	}

	return c.associations.GetOrFetch(ctx, id, func(ctx context.Context) (core.Association, error) {
		var response associationResponse
		err := c.do(ctx, http.MethodGet, resolved, "/api/v1/associations/"+id, nil, &response, false)
		if err != nil {
			span.RecordError(err)
			return core.Association{}, err
		}
		if response.Association.ID == "" {
			return core.Association{}, core.NewErrorNotFound()
		}
		return response.Association, nil
	})
}

// DeleteAssociation deletes an association by id. Ownership is enforced
// server-side.
func (c *client) DeleteAssociation(ctx context.Context, id string, host string) error {
	ctx, span := tracer.Start(ctx, "Client.DeleteAssociation")
	defer span.End()

	resolved, err := c.resolver.ResolveHost(id, host)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = c.do(ctx, http.MethodDelete, resolved, "/api/v1/associations", deleteRequest{ID: id}, nil, true)
	if err != nil {
		span.RecordError(err)
		return err
	}

	c.associations.Invalidate(id)
	return nil
}

// UpsertCharacter replaces the character document for (author, schema)
// wholesale on the home host, then evicts the cached copy.
func (c *client) UpsertCharacter(ctx context.Context, schema string, body any, id string) (core.Character, error) {
	ctx, span := tracer.Start(ctx, "Client.UpsertCharacter")
	defer span.End()

	if err := c.requireSession(); err != nil {
		span.RecordError(err)
		return core.Character{}, err
	}

	object := core.NewSignedObject(c.conf.CCAddr, "character", schema, body)
	document, signature, err := core.Seal(object, c.conf.PrivateKey)
	if err != nil {
		span.RecordError(err)
		return core.Character{}, err
	}

	request := putCharacterRequest{
		SignedObject: document,
		Signature:    signature,
		ID:           id,
	}

	var response putCharacterResponse
	err = c.do(ctx, http.MethodPut, c.conf.Host, "/api/v1/characters", request, &response, true)
	if err != nil {
		span.RecordError(err)
		return core.Character{}, err
	}

	c.characters.Invalidate(characterKey(c.conf.CCAddr, schema))
	return response.Content, nil
}

// GetCharacter returns the character for (author, schema),
// cache-checked. Without an explicit host the author's home host is
// resolved through their entity record.
func (c *client) GetCharacter(ctx context.Context, author string, schema string, host string) (core.Character, error) {
	ctx, span := tracer.Start(ctx, "Client.GetCharacter")
	defer span.End()

	return c.characters.GetOrFetch(ctx, characterKey(author, schema), func(ctx context.Context) (core.Character, error) {
		resolved := host
		if resolved == "" {
			var err error
			resolved, err = c.resolver.ResolveEntityHost(ctx, author)
			if err != nil {
				span.RecordError(err)
				return core.Character{}, err
			}
		}

		var response charactersResponse
		path := "/api/v1/characters?author=" + author + "&schema=" + url.QueryEscape(schema)
		err := c.do(ctx, http.MethodGet, resolved, path, nil, &response, false)
		if err != nil {
			span.RecordError(err)
			return core.Character{}, err
		}
		if len(response.Characters) == 0 {
			return core.Character{}, core.NewErrorNotFound()
		}
		return response.Characters[0], nil
	})
}

// CreateStream creates a stream on the home host.
func (c *client) CreateStream(ctx context.Context, schema string, body any, maintainer []string, writer []string, reader []string) (CreateResponse, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateStream")
	defer span.End()

	return c.putStream(ctx, "", schema, body, maintainer, writer, reader)
}

// UpdateStream replaces a stream's payload and grants wholesale, then
// evicts the cached copy under the identifier as it was requested.
func (c *client) UpdateStream(ctx context.Context, id string, schema string, body any, maintainer []string, writer []string, reader []string) (CreateResponse, error) {
	ctx, span := tracer.Start(ctx, "Client.UpdateStream")
	defer span.End()

	response, err := c.putStream(ctx, id, schema, body, maintainer, writer, reader)
	if err != nil {
		return CreateResponse{}, err
	}

	c.streams.Invalidate(id)
	return response, nil
}

func (c *client) putStream(ctx context.Context, id string, schema string, body any, maintainer []string, writer []string, reader []string) (CreateResponse, error) {
	if err := c.requireSession(); err != nil {
		return CreateResponse{}, err
	}

	key := id
	host := c.conf.Host
	if id != "" {
		var err error
		key, host, err = c.resolver.splitStreamID(id)
		if err != nil {
			return CreateResponse{}, err
		}
	}

	object := core.NewSignedObject(c.conf.CCAddr, "stream", schema, body)
	object.Maintainer = maintainer
	object.Writer = writer
	object.Reader = reader
	document, signature, err := core.Seal(object, c.conf.PrivateKey)
	if err != nil {
		return CreateResponse{}, err
	}

	request := putStreamRequest{
		SignedObject: document,
		Signature:    signature,
		ID:           key,
	}

	var response CreateResponse
	err = c.do(ctx, http.MethodPut, host, "/api/v1/stream", request, &response, true)
	if err != nil {
		return CreateResponse{}, err
	}

	return response, nil
}

// GetStream returns a stream, cache-checked. The cache key is the
// identifier exactly as requested, @host suffix included, so the same
// logical stream reached through different hosts caches independently.
func (c *client) GetStream(ctx context.Context, id string) (core.Stream, error) {
	ctx, span := tracer.Start(ctx, "Client.GetStream")
	defer span.End()

	key, host, err := c.resolver.splitStreamID(id)
	if err != nil {
		span.RecordError(err)
		return core.Stream{}, err
	}

	return c.streams.GetOrFetch(ctx, id, func(ctx context.Context) (core.Stream, error) {
		var stream core.Stream
		err := c.do(ctx, http.MethodGet, host, "/api/v1/stream?stream="+key, nil, &stream, false)
		if err != nil {
			span.RecordError(err)
			return core.Stream{}, err
		}
		if stream.ID == "" {
			return core.Stream{}, core.NewErrorNotFound()
		}
		return stream, nil
	})
}

// ListStreamBySchema lists streams of a schema on the home host, or on
// remote when given.
func (c *client) ListStreamBySchema(ctx context.Context, schema string, remote string) ([]core.Stream, error) {
	ctx, span := tracer.Start(ctx, "Client.ListStreamBySchema")
	defer span.End()

	host, err := c.resolver.ResolveHost("", remote)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var streams []core.Stream
	err = c.do(ctx, http.MethodGet, host, "/api/v1/stream/list?schema="+url.QueryEscape(schema), nil, &streams, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return streams, nil
}

// GetStreamRecent reads the most recent elements of a set of streams,
// one request per resolved host. Results are concatenated in first-seen
// host order; callers sort if global order matters.
func (c *client) GetStreamRecent(ctx context.Context, streams []string) ([]core.StreamElement, error) {
	ctx, span := tracer.Start(ctx, "Client.GetStreamRecent")
	defer span.End()

	return c.readStreams(ctx, span, streams, func(ids string) string {
		return "/api/v1/stream/recent?streams=" + ids
	})
}

// GetStreamRanged reads a time window of a set of streams. until and
// since are epoch strings; empty means unbounded on that side.
func (c *client) GetStreamRanged(ctx context.Context, streams []string, until string, since string) ([]core.StreamElement, error) {
	ctx, span := tracer.Start(ctx, "Client.GetStreamRanged")
	defer span.End()

	return c.readStreams(ctx, span, streams, func(ids string) string {
		path := "/api/v1/stream/range?streams=" + ids
		if since != "" {
			path += "&since=" + since
		}
		if until != "" {
			path += "&until=" + until
		}
		return path
	})
}

func (c *client) readStreams(ctx context.Context, span trace.Span, streams []string, makePath func(ids string) string) ([]core.StreamElement, error) {
	var hosts []string
	buckets := make(map[string][]string)

	for _, stream := range streams {
		key, host, err := c.resolver.splitStreamID(stream)
		if err != nil {
			return nil, err
		}
		if _, seen := buckets[host]; !seen {
			hosts = append(hosts, host)
		}
		buckets[host] = append(buckets[host], key)
	}

	var merged []core.StreamElement
	for _, host := range hosts {
		var elements []core.StreamElement
		err := c.do(ctx, http.MethodGet, host, makePath(strings.Join(buckets[host], ",")), nil, &elements, false)
		if err != nil {
			span.RecordError(err)
			slog.WarnContext(ctx, fmt.Sprintf("failed to read streams from %s: %v", host, err), slog.String("module", "client"))
			continue
		}
		merged = append(merged, elements...)
	}

	return merged, nil
}

// GetUserHomeStreams resolves the home stream of each address. All
// addresses are resolved in parallel; the output keeps the input order
// of the addresses that resolved successfully.
func (c *client) GetUserHomeStreams(ctx context.Context, users []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Client.GetUserHomeStreams")
	defer span.End()

	resolved := make([]string, len(users))
	ok := make([]bool, len(users))

	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()

			host, err := c.resolver.ResolveEntityHost(ctx, user)
			if err != nil {
				span.RecordError(err)
				return
			}

			character, err := c.GetCharacter(ctx, user, core.SchemaUserstreams, host)
			if err != nil {
				span.RecordError(err)
				return
			}

			document, err := core.DecodePayload[core.Userstreams](character.Payload)
			if err != nil {
				span.RecordError(err)
				return
			}

			id := document.Body.HomeStream
			if id == "" {
				return
			}
			if host != c.conf.Host && !strings.Contains(id, "@") {
				id = id + "@" + host
			}

			resolved[i] = id
			ok[i] = true
		}(i, user)
	}
	wg.Wait()

	var out []string
	for i := range users {
		if ok[i] {
			out = append(out, resolved[i])
		}
	}
	return out, nil
}

// SetupUserstreams bootstraps the three per-user system streams and the
// userstreams character pointing at them. Idempotent: when the
// character already exists nothing is written. A failure partway leaves
// streams without a pointer; re-running creates a fresh set and the
// upsert wins, so the flow is safe to retry.
func (c *client) SetupUserstreams(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Client.SetupUserstreams")
	defer span.End()

	if err := c.requireSession(); err != nil {
		span.RecordError(err)
		return err
	}

	_, err := c.GetCharacter(ctx, c.conf.CCAddr, core.SchemaUserstreams, c.conf.Host)
	if err == nil {
		return nil
	}
	if !core.IsNotFound(err) {
		span.RecordError(err)
		return err
	}

	me := []string{c.conf.CCAddr}

	home, err := c.CreateStream(ctx, core.SchemaUtilityStream, map[string]any{}, me, me, []string{})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to create home stream")
	}

	notification, err := c.CreateStream(ctx, core.SchemaUtilityStream, map[string]any{}, me, []string{}, me)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to create notification stream")
	}

	association, err := c.CreateStream(ctx, core.SchemaUtilityStream, map[string]any{}, me, []string{}, me)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to create association stream")
	}

	_, err = c.UpsertCharacter(ctx, core.SchemaUserstreams, core.Userstreams{
		HomeStream:         home.ID,
		NotificationStream: notification.ID,
		AssociationStream:  association.ID,
	}, "")
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to upsert userstreams character")
	}

	return nil
}

// GetEntity returns the entity record for an address, cached for the
// session.
func (c *client) GetEntity(ctx context.Context, ccaddr string) (core.Entity, error) {
	ctx, span := tracer.Start(ctx, "Client.GetEntity")
	defer span.End()

	if c.conf.Host == "" {
		return core.Entity{}, core.NewErrorSessionRequired()
	}

	return c.entities.GetOrFetch(ctx, ccaddr, func(ctx context.Context) (core.Entity, error) {
		var entity core.Entity
		err := c.do(ctx, http.MethodGet, c.conf.Host, "/api/v1/entity/"+ccaddr, nil, &entity, false)
		if err != nil {
			span.RecordError(err)
			return core.Entity{}, err
		}
		if entity.ID == "" {
			return core.Entity{}, core.NewErrorNotFound()
		}
		return entity, nil
	})
}

// GetHost returns a host's profile, from remote when given.
func (c *client) GetHost(ctx context.Context, remote string) (core.Host, error) {
	ctx, span := tracer.Start(ctx, "Client.GetHost")
	defer span.End()

	host, err := c.resolver.ResolveHost("", remote)
	if err != nil {
		span.RecordError(err)
		return core.Host{}, err
	}

	var profile core.Host
	err = c.do(ctx, http.MethodGet, host, "/api/v1/host", nil, &profile, false)
	if err != nil {
		span.RecordError(err)
		return core.Host{}, err
	}

	return profile, nil
}

// ListHosts returns the hosts known to the home host.
func (c *client) ListHosts(ctx context.Context) ([]core.Host, error) {
	ctx, span := tracer.Start(ctx, "Client.ListHosts")
	defer span.End()

	if c.conf.Host == "" {
		return nil, core.NewErrorSessionRequired()
	}

	var hosts []core.Host
	err := c.do(ctx, http.MethodGet, c.conf.Host, "/api/v1/host/list", nil, &hosts, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return hosts, nil
}

func (c *client) requireSession() error {
	if c.conf.Host == "" || c.conf.PrivateKey == "" {
		return core.NewErrorSessionRequired()
	}
	return nil
}

func characterKey(author string, schema string) string {
	return author + ":" + schema
}

// do issues one request. Every call shares the instrumented http client
// and its uniform timeout. 404s and sentinel bodies are surfaced by the
// callers as core.ErrorNotFound; other non-2xx responses carry the raw
// server body in a RequestError.
func (c *client) do(ctx context.Context, method string, host string, path string, body any, out any, authenticated bool) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.conf.Scheme+"://"+host+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticated {
		token, err := jwt.Create(jwt.Claims{
			Issuer:         c.conf.CCAddr,
			Subject:        "CONCURRENT_API",
			Audience:       host,
			ExpirationTime: strconv.FormatInt(time.Now().Add(1*time.Minute).Unix(), 10),
			IssuedAt:       strconv.FormatInt(time.Now().Unix(), 10),
			JWTID:          xid.New().String(),
		}, c.conf.PrivateKey)
		if err != nil {
			return errors.Wrap(err, "failed to create credential")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return core.NewErrorNotFound()
	}
	if resp.StatusCode >= 400 {
		return RequestError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, "failed to decode response")
		}
	}

	return nil
}
