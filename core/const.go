package core

const (
	// ClientID identifies this library in signed envelope metadata.
	ClientID = "concurrent-client-go"
)

// well-known schema URLs
const (
	SchemaUserstreams   = "https://raw.githubusercontent.com/totegamma/concurrent-schemas/master/characters/userstreams/0.0.1.json"
	SchemaUtilityStream = "https://raw.githubusercontent.com/totegamma/concurrent-schemas/master/streams/utilitystream/0.0.1.json"
	SchemaSimpleNote    = "https://raw.githubusercontent.com/totegamma/concurrent-schemas/master/messages/note/0.0.1.json"
	SchemaLike          = "https://raw.githubusercontent.com/totegamma/concurrent-schemas/master/associations/like/0.0.1.json"
)
