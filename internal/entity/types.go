package entity

import (
	"encoding/json"
	"strings"
)

// Type is the entity type written to the store
type Type string

const (
	TypeMessage      Type = "exchange_message"
	TypeEmailAddress Type = "email_address"
	TypeDomain       Type = "email_domain"
	TypeAttachment   Type = "exchange_attachment"
	TypeConversation Type = "exchange_conversation"
)

// Label returns the graph node label for the type
func (t Type) Label() string {
	switch t {
	case TypeMessage:
		return "Message"
	case TypeEmailAddress:
		return "EmailAddress"
	case TypeDomain:
		return "Domain"
	case TypeAttachment:
		return "Attachment"
	case TypeConversation:
		return "Conversation"
	default:
		return "Unknown"
	}
}

// Kind is the class of a directed relationship
type Kind string

const (
	KindSentFrom  Kind = "SENT_FROM"
	KindSentTo    Kind = "SENT_TO"
	KindCCTo      Kind = "CC_TO"
	KindBelongsTo Kind = "BELONGS_TO"
	KindContains  Kind = "CONTAINS"
)

// RawData is provider payload kept alongside an entity for provenance.
// It is never promoted to attributes.
type RawData struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"rawData"`
}

// Entity is a typed, uniquely keyed node
type Entity struct {
	Key        string         `json:"_key"`
	Type       Type           `json:"_type"`
	Attributes map[string]any `json:"attributes"`
	RawData    []RawData      `json:"_rawData,omitempty"`
}

// Relationship is a typed, uniquely keyed directed edge between two entity keys
type Relationship struct {
	Key      string `json:"_key"`
	Kind     Kind   `json:"_class"`
	FromKey  string `json:"_fromEntityKey"`
	FromType Type   `json:"_fromEntityType"`
	ToKey    string `json:"_toEntityKey"`
	ToType   Type   `json:"_toEntityType"`
}

// Type returns the relationship type, e.g. exchange_message_sent_from_email_address
func (r Relationship) Type() string {
	return string(r.FromType) + "_" + strings.ToLower(string(r.Kind)) + "_" + string(r.ToType)
}
