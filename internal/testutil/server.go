package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/totegamma/concurrent-client/core"
)

type postRequest struct {
	SignedObject string   `json:"signedObject"`
	Signature    string   `json:"signature"`
	Streams      []string `json:"streams"`
	TargetType   string   `json:"targetType"`
	ID           string   `json:"id"`
}

type deleteRequest struct {
	ID string `json:"id"`
}

// MockHost is an in-memory concurrent API host for client tests.
// State access is guarded so parallel client calls are safe.
type MockHost struct {
	FQDN string

	mu             sync.Mutex
	nextID         int
	writeCount     int
	recentRequests []string
	rangeRequests  []string

	Messages     map[string]core.Message
	Associations map[string]core.Association
	Characters   map[string]core.Character
	Streams      map[string]core.Stream
	Entities     map[string]core.Entity
	Elements     map[string][]core.StreamElement

	server *httptest.Server
}

// NewMockHost starts a mock host on a loopback listener. Callers use
// the FQDN with an http scheme session.
func NewMockHost() *MockHost {
	m := &MockHost{
		Messages:     make(map[string]core.Message),
		Associations: make(map[string]core.Association),
		Characters:   make(map[string]core.Character),
		Streams:      make(map[string]core.Stream),
		Entities:     make(map[string]core.Entity),
		Elements:     make(map[string][]core.StreamElement),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/api/v1/messages/:id", m.getMessage)
	e.POST("/api/v1/messages", m.postMessage)
	e.DELETE("/api/v1/messages", m.deleteMessage)
	e.GET("/api/v1/associations/:id", m.getAssociation)
	e.POST("/api/v1/associations", m.postAssociation)
	e.DELETE("/api/v1/associations", m.deleteAssociation)
	e.GET("/api/v1/characters", m.getCharacters)
	e.PUT("/api/v1/characters", m.putCharacter)
	e.GET("/api/v1/stream", m.getStream)
	e.PUT("/api/v1/stream", m.putStream)
	e.GET("/api/v1/stream/list", m.listStreams)
	e.GET("/api/v1/stream/recent", m.recent)
	e.GET("/api/v1/stream/range", m.ranged)
	e.GET("/api/v1/entity/:id", m.getEntity)
	e.GET("/api/v1/host", m.getHost)
	e.GET("/api/v1/host/list", m.listHosts)

	m.server = httptest.NewServer(e)
	m.FQDN = strings.TrimPrefix(m.server.URL, "http://")

	return m
}

// Close shuts the listener down.
func (m *MockHost) Close() {
	m.server.Close()
}

// WriteCount reports how many write requests the host has accepted.
func (m *MockHost) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCount
}

// RecentRequests returns the streams query values seen by the recent
// endpoint, in arrival order.
func (m *MockHost) RecentRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.recentRequests...)
}

// RangeRequests returns the streams query values seen by the range
// endpoint, in arrival order.
func (m *MockHost) RangeRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.rangeRequests...)
}

// AddEntity registers an entity record.
func (m *MockHost) AddEntity(entity core.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entities[entity.ID] = entity
}

// AddElement appends a timeline element to a stream.
func (m *MockHost) AddElement(stream string, element core.StreamElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	element.Stream = stream
	m.Elements[stream] = append(m.Elements[stream], element)
}

// SetCharacter registers a character document.
func (m *MockHost) SetCharacter(character core.Character) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Characters[character.Author+":"+character.Schema] = character
}

// SetMessage registers a message.
func (m *MockHost) SetMessage(message core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages[message.ID] = message
}

func (m *MockHost) allocate(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%026d", prefix, m.nextID)
}

func (m *MockHost) getMessage(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	message, ok := m.Messages[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusOK, core.Message{})
	}
	return c.JSON(http.StatusOK, message)
}

func (m *MockHost) postMessage(c echo.Context) error {
	var request postRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	object, err := core.DecodePayload[any](request.SignedObject)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signed object"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCount++

	id := m.allocate("m")
	m.Messages[id] = core.Message{
		ID:        id,
		Author:    object.Signer,
		Schema:    object.Schema,
		Payload:   request.SignedObject,
		Signature: request.Signature,
		Streams:   request.Streams,
		CDate:     object.SignedAt,
	}

	return c.JSON(http.StatusCreated, echo.Map{"message": "accept", "id": id})
}

func (m *MockHost) deleteMessage(c echo.Context) error {
	var request deleteRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCount++
	delete(m.Messages, request.ID)

	return c.JSON(http.StatusOK, echo.Map{"message": "accept"})
}

func (m *MockHost) getAssociation(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	association, ok := m.Associations[c.Param("id")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "association not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"association": association})
}

func (m *MockHost) postAssociation(c echo.Context) error {
	var request postRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	object, err := core.DecodePayload[any](request.SignedObject)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signed object"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCount++

	id := m.allocate("a")
	m.Associations[id] = core.Association{
		ID:         id,
		Author:     object.Signer,
		Schema:     object.Schema,
		TargetID:   object.Target,
		TargetType: request.TargetType,
		Payload:    request.SignedObject,
		Signature:  request.Signature,
		Streams:    request.Streams,
		CDate:      object.SignedAt,
	}

	return c.JSON(http.StatusCreated, echo.Map{"message": "accept", "id": id})
}

func (m *MockHost) deleteAssociation(c echo.Context) error {
	var request deleteRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCount++
	delete(m.Associations, request.ID)

	return c.JSON(http.StatusOK, echo.Map{"message": "accept"})
}

func (m *MockHost) getCharacters(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	character, ok := m.Characters[c.QueryParam("author")+":"+c.QueryParam("schema")]
	characters := []core.Character{}
	if ok {
		characters = append(characters, character)
	}
	return c.JSON(http.StatusOK, echo.Map{"characters": characters})
}

func (m *MockHost) putCharacter(c echo.Context) error {
	var request postRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	object, err := core.DecodePayload[any](request.SignedObject)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signed object"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCount++

	id := request.ID
	if id == "" {
		id = m.allocate("p")
	}
	character := core.Character{
		ID:        id,
		Author:    object.Signer,
		Schema:    object.Schema,
		Payload:   request.SignedObject,
		Signature: request.Signature,
	}
	m.Characters[object.Signer+":"+object.Schema] = character

	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "content": character})
}

func (m *MockHost) getStream(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stream, ok := m.Streams[c.QueryParam("stream")]
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "stream not found"})
	}
	return c.JSON(http.StatusOK, stream)
}

func (m *MockHost) putStream(c echo.Context) error {
	var request postRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	object, err := core.DecodePayload[any](request.SignedObject)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signed object"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCount++

	id := request.ID
	if id == "" {
		m.nextID++
		id = fmt.Sprintf("s%019d", m.nextID)
	}
	m.Streams[id] = core.Stream{
		ID:         id,
		Author:     object.Signer,
		Maintainer: object.Maintainer,
		Writer:     object.Writer,
		Reader:     object.Reader,
		Schema:     object.Schema,
		Payload:    request.SignedObject,
		Signature:  request.Signature,
	}

	return c.String(http.StatusCreated, fmt.Sprintf("{\"message\": \"accept\", \"id\": \"%s\"}", id))
}

func (m *MockHost) listStreams(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	schema := c.QueryParam("schema")
	streams := []core.Stream{}
	for _, stream := range m.Streams {
		if stream.Schema == schema {
			streams = append(streams, stream)
		}
	}
	return c.JSON(http.StatusOK, streams)
}

func (m *MockHost) recent(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := c.QueryParam("streams")
	m.recentRequests = append(m.recentRequests, query)

	elements := []core.StreamElement{}
	for _, stream := range strings.Split(query, ",") {
		elements = append(elements, m.Elements[stream]...)
	}
	return c.JSON(http.StatusOK, elements)
}

func (m *MockHost) ranged(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := c.QueryParam("streams")
	m.rangeRequests = append(m.rangeRequests, query)

	until := c.QueryParam("until")
	since := c.QueryParam("since")

	elements := []core.StreamElement{}
	for _, stream := range strings.Split(query, ",") {
		for _, element := range m.Elements[stream] {
			if until != "" && !older(element.Timestamp, until) {
				continue
			}
			if since != "" && !older(since, element.Timestamp) {
				continue
			}
			elements = append(elements, element)
		}
	}
	return c.JSON(http.StatusOK, elements)
}

func older(a string, b string) bool {
	fa, _ := strconv.ParseFloat(a, 64)
	fb, _ := strconv.ParseFloat(b, 64)
	return fa < fb
}

func (m *MockHost) getEntity(c echo.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entity, ok := m.Entities[c.Param("id")]
	if !ok {
		// not-found sentinel: empty ccaddr
		return c.JSON(http.StatusOK, core.Entity{})
	}
	return c.JSON(http.StatusOK, entity)
}

func (m *MockHost) getHost(c echo.Context) error {
	return c.JSON(http.StatusOK, core.Host{
		ID:   m.FQDN,
		Role: "mock",
	})
}

func (m *MockHost) listHosts(c echo.Context) error {
	return c.JSON(http.StatusOK, []core.Host{{ID: m.FQDN, Role: "mock"}})
}
