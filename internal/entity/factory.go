package entity

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rohankatakam/mailgraph/internal/errors"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

const (
	// MinKeyLength is the shortest key the graph accepts; shorter ids are padded
	MinKeyLength = 10

	keyPadding = "_"

	defaultSubject        = "NO SUBJECT"
	defaultAttachmentName = "No attachment name"
)

// GenerateKey derives an entity key from a natural upstream identifier
func GenerateKey(id string) string {
	return padRight(id, MinKeyLength)
}

// EmailAddressKey derives the key of an email address entity. The address is
// lower-cased so casing variants collapse onto one node.
func EmailAddressKey(address string) string {
	return GenerateKey(strings.ToLower(padRight(address, MinKeyLength)))
}

// NewMessage builds the Message entity for a Graph message
func NewMessage(m *msgraph.Message) Entity {
	subject := m.Subject
	if subject == "" {
		subject = defaultSubject
	}

	attrs := map[string]any{
		"name":           subject,
		"subject":        subject,
		"conversationId": m.ConversationID,
		"importance":     m.Importance,
		"isRead":         m.IsRead,
		"isDraft":        m.IsDraft,
		"hasAttachments": m.HasAttachments,
	}
	setTime(attrs, "receivedOn", m.ReceivedDateTime)
	setTime(attrs, "sentOn", m.SentDateTime)
	if m.WebLink != "" {
		attrs["webLink"] = m.WebLink
	}

	return Entity{
		Key:        GenerateKey(m.ID),
		Type:       TypeMessage,
		Attributes: attrs,
		RawData:    rawData(m.Raw),
	}
}

// NewConversation builds the Conversation entity for a conversation id
func NewConversation(conversationID string) Entity {
	return Entity{
		Key:  GenerateKey(conversationID),
		Type: TypeConversation,
		Attributes: map[string]any{
			"name": conversationID,
		},
	}
}

// NewAttachment builds the Attachment entity for a Graph attachment
func NewAttachment(a *msgraph.Attachment) Entity {
	name := a.Name
	if name == "" {
		name = defaultAttachmentName
	}

	attrs := map[string]any{
		"name":        name,
		"contentType": a.ContentType,
		"size":        a.Size,
		"isInline":    a.IsInline,
	}
	setTime(attrs, "lastModifiedOn", a.LastModifiedDateTime)

	return Entity{
		Key:        GenerateKey(a.ID),
		Type:       TypeAttachment,
		Attributes: attrs,
		RawData:    rawData(a.Raw),
	}
}

// NewEmailAddress builds the EmailAddress entity for a resolved pair
func NewEmailAddress(address, name string) Entity {
	source, _ := json.Marshal(map[string]string{"address": address, "name": name})
	return Entity{
		Key:  EmailAddressKey(address),
		Type: TypeEmailAddress,
		Attributes: map[string]any{
			"name":        name,
			"displayName": name,
			"address":     address,
		},
		RawData: rawData(source),
	}
}

// NewDomain builds the Domain entity for a derived domain
func NewDomain(domain string) Entity {
	source, _ := json.Marshal(map[string]string{"domain": domain})
	return Entity{
		Key:  GenerateKey(domain),
		Type: TypeDomain,
		Attributes: map[string]any{
			"name": domain,
		},
		RawData: rawData(source),
	}
}

// RelationshipKey derives the key of an edge from its endpoints and kind
func RelationshipKey(fromKey string, kind Kind, toKey string) string {
	return fromKey + "|" + strings.ToLower(string(kind)) + "|" + toKey
}

// NewRelationship builds a directed edge between two already-built entities.
// Both endpoints must carry a key.
func NewRelationship(from Entity, kind Kind, to Entity) (Relationship, error) {
	if from.Key == "" || to.Key == "" {
		return Relationship{}, errors.ValidationErrorf(
			"relationship %s requires both endpoint keys (from=%q to=%q)", kind, from.Key, to.Key)
	}

	return Relationship{
		Key:      RelationshipKey(from.Key, kind, to.Key),
		Kind:     kind,
		FromKey:  from.Key,
		FromType: from.Type,
		ToKey:    to.Key,
		ToType:   to.Type,
	}, nil
}

func setTime(attrs map[string]any, name string, t *time.Time) {
	if t != nil && !t.IsZero() {
		attrs[name] = t.UTC().Format(time.RFC3339)
	}
}

func rawData(data json.RawMessage) []RawData {
	if len(data) == 0 {
		return nil
	}
	return []RawData{{Name: "default", Data: data}}
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(keyPadding, n-len(s))
}
