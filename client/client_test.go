package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/totegamma/concurrent-client/core"
	"github.com/totegamma/concurrent-client/internal/testutil"
	"github.com/totegamma/concurrent-client/util"
)

const (
	testKey  = "con1fk8zlkrfmens3sgj7dzcu3gsw8v9kkysrf8dt5"
	testPriv = "1236fa65392e99067750aaed5fd4d9ff93f51fd088e94963e51669396cdd597c"
)

func newTestClient(host string) Client {
	return NewClient(util.Config{
		Session: util.Session{
			Host:       host,
			Scheme:     "http",
			CCAddr:     testKey,
			PrivateKey: testPriv,
		},
	}, nil)
}

func TestCreateAndGetMessage(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	created, err := c.CreateMessage(ctx, core.SchemaSimpleNote, map[string]any{"body": "hello"}, []string{"s1"})
	assert.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	message, err := c.GetMessage(ctx, created.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, testKey, message.Author)

	document, err := core.DecodePayload[map[string]any](message.Payload)
	assert.NoError(t, err)
	assert.Equal(t, "hello", document.Body["body"])

	// the transmitted document still verifies against the author address
	err = core.VerifySignature([]byte(message.Payload), message.Signature, testKey)
	assert.NoError(t, err)
}

func TestGetMessageAbsence(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)

	_, err := c.GetMessage(context.Background(), "m00000000000000000000000000", "")
	assert.True(t, core.IsNotFound(err))
}

func TestMessageCacheStaleness(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	mock.SetMessage(core.Message{ID: "m1", Author: "con1aaa", Payload: "{\"v\":1}"})

	message, err := c.GetMessage(ctx, "m1", "")
	assert.NoError(t, err)
	assert.Equal(t, "{\"v\":1}", message.Payload)

	// server-side change is not visible through the cache
	mock.SetMessage(core.Message{ID: "m1", Author: "con1aaa", Payload: "{\"v\":2}"})
	message, err = c.GetMessage(ctx, "m1", "")
	assert.NoError(t, err)
	assert.Equal(t, "{\"v\":1}", message.Payload)

	// until the entry is invalidated
	c.InvalidateMessage("m1")
	message, err = c.GetMessage(ctx, "m1", "")
	assert.NoError(t, err)
	assert.Equal(t, "{\"v\":2}", message.Payload)
}

func TestDeleteMessageInvalidates(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	mock.SetMessage(core.Message{ID: "m1", Author: "con1aaa", Payload: "{}"})

	_, err := c.GetMessage(ctx, "m1", "")
	assert.NoError(t, err)

	err = c.DeleteMessage(ctx, "m1")
	assert.NoError(t, err)

	_, err = c.GetMessage(ctx, "m1", "")
	assert.True(t, core.IsNotFound(err))
}

func TestAssociationRoundTrip(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	created, err := c.CreateAssociation(ctx, core.SchemaLike, map[string]any{}, "m1", "messages", []string{"s1"}, "")
	assert.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	association, err := c.GetAssociation(ctx, created.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, "m1", association.TargetID)
	assert.Equal(t, "messages", association.TargetType)

	err = c.DeleteAssociation(ctx, created.ID, "")
	assert.NoError(t, err)

	_, err = c.GetAssociation(ctx, created.ID, "")
	assert.True(t, core.IsNotFound(err))
}

func TestCharacterUpsertInvalidates(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	_, err := c.UpsertCharacter(ctx, "https://example.com/schemas/profile.json", map[string]any{"name": "alice"}, "")
	assert.NoError(t, err)

	character, err := c.GetCharacter(ctx, testKey, "https://example.com/schemas/profile.json", mock.FQDN)
	assert.NoError(t, err)

	document, err := core.DecodePayload[map[string]any](character.Payload)
	assert.NoError(t, err)
	assert.Equal(t, "alice", document.Body["name"])

	// the upsert evicts the cached copy, so the replacement is visible
	_, err = c.UpsertCharacter(ctx, "https://example.com/schemas/profile.json", map[string]any{"name": "bob"}, character.ID)
	assert.NoError(t, err)

	character, err = c.GetCharacter(ctx, testKey, "https://example.com/schemas/profile.json", mock.FQDN)
	assert.NoError(t, err)
	document, err = core.DecodePayload[map[string]any](character.Payload)
	assert.NoError(t, err)
	assert.Equal(t, "bob", document.Body["name"])
}

func TestGetStreamRecentGroupsByHost(t *testing.T) {
	hostA := testutil.NewMockHost()
	defer hostA.Close()
	hostB := testutil.NewMockHost()
	defer hostB.Close()

	hostA.AddElement("s1", core.StreamElement{ID: "m1", Timestamp: "100"})
	hostA.AddElement("s3", core.StreamElement{ID: "m3", Timestamp: "300"})
	hostB.AddElement("s2", core.StreamElement{ID: "m2", Timestamp: "200"})

	c := newTestClient(hostA.FQDN)
	ctx := context.Background()

	elements, err := c.GetStreamRecent(ctx, []string{
		"s1@" + hostA.FQDN,
		"s2@" + hostB.FQDN,
		"s3@" + hostA.FQDN,
	})
	assert.NoError(t, err)

	// exactly one request per host, ids grouped, host order = first seen
	assert.Equal(t, []string{"s1,s3"}, hostA.RecentRequests())
	assert.Equal(t, []string{"s2"}, hostB.RecentRequests())

	ids := []string{}
	for _, element := range elements {
		ids = append(ids, element.ID)
	}
	assert.Equal(t, []string{"m1", "m3", "m2"}, ids)
}

func TestGetStreamRangedReturnsOlder(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	mock.AddElement("s1", core.StreamElement{ID: "m1", Timestamp: "100"})
	mock.AddElement("s1", core.StreamElement{ID: "m2", Timestamp: "200"})
	mock.AddElement("s1", core.StreamElement{ID: "m3", Timestamp: "300"})

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	elements, err := c.GetStreamRanged(ctx, []string{"s1"}, "200", "")
	assert.NoError(t, err)
	assert.Len(t, elements, 1)
	assert.Equal(t, "m1", elements[0].ID)
}

func TestSetupUserstreamsIdempotent(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	err := c.SetupUserstreams(ctx)
	assert.NoError(t, err)

	// three streams plus the pointer character
	writes := mock.WriteCount()
	assert.Equal(t, 4, writes)

	// a second run finds the character and performs zero writes
	err = c.SetupUserstreams(ctx)
	assert.NoError(t, err)
	assert.Equal(t, writes, mock.WriteCount())
}

func TestGetUserHomeStreams(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	registerUserstreams := func(ccaddr string, home string) {
		object := core.NewSignedObject(ccaddr, "character", core.SchemaUserstreams, core.Userstreams{HomeStream: home})
		document, signature, err := core.Seal(object, testPriv)
		assert.NoError(t, err)
		mock.AddEntity(core.Entity{ID: ccaddr, Host: mock.FQDN})
		mock.SetCharacter(core.Character{
			ID:        "p" + ccaddr,
			Author:    ccaddr,
			Schema:    core.SchemaUserstreams,
			Payload:   document,
			Signature: signature,
		})
	}

	registerUserstreams("con1aaa", "sAAA")
	registerUserstreams("con1ccc", "sCCC")
	// con1bbb is never registered and fails resolution

	streams, err := c.GetUserHomeStreams(ctx, []string{"con1aaa", "con1bbb", "con1ccc"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"sAAA", "sCCC"}, streams)
}

func TestGetEntitySentinel(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	mock.AddEntity(core.Entity{ID: "con1aaa", Host: "remote.example.com"})

	entity, err := c.GetEntity(ctx, "con1aaa")
	assert.NoError(t, err)
	assert.Equal(t, "remote.example.com", entity.Host)

	_, err = c.GetEntity(ctx, "con1unknown")
	assert.True(t, core.IsNotFound(err))
}

func TestStreamCRUD(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	created, err := c.CreateStream(ctx, core.SchemaUtilityStream, map[string]any{"name": "general"}, []string{testKey}, []string{}, []string{})
	assert.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	stream, err := c.GetStream(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, testKey, stream.Author)

	// update replaces wholesale and evicts the cached copy
	_, err = c.UpdateStream(ctx, created.ID, core.SchemaUtilityStream, map[string]any{"name": "renamed"}, []string{testKey}, []string{testKey}, []string{})
	assert.NoError(t, err)

	stream, err = c.GetStream(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{testKey}, stream.Writer)

	listed, err := c.ListStreamBySchema(ctx, core.SchemaUtilityStream, "")
	assert.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestHosts(t *testing.T) {
	mock := testutil.NewMockHost()
	defer mock.Close()

	c := newTestClient(mock.FQDN)
	ctx := context.Background()

	host, err := c.GetHost(ctx, "")
	assert.NoError(t, err)
	assert.Equal(t, mock.FQDN, host.ID)

	hosts, err := c.ListHosts(ctx)
	assert.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestSessionRequired(t *testing.T) {
	c := NewClient(util.Config{}, nil)

	_, err := c.CreateMessage(context.Background(), core.SchemaSimpleNote, map[string]any{}, nil)
	assert.IsType(t, core.ErrorSessionRequired{}, err)
}
