package msgraph

import (
	"encoding/json"
	"time"
)

// EmailAddress is the provider's address/name pair. Either field can carry
// several concatenated addresses.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Recipient wraps an EmailAddress as Graph does for from/to/cc lists
type Recipient struct {
	EmailAddress *EmailAddress `json:"emailAddress"`
}

// Message is the subset of a Graph message resource the pipeline consumes.
// Raw holds the full payload as received, for provenance only.
type Message struct {
	ID               string      `json:"id"`
	Subject          string      `json:"subject"`
	ConversationID   string      `json:"conversationId"`
	ReceivedDateTime *time.Time  `json:"receivedDateTime"`
	SentDateTime     *time.Time  `json:"sentDateTime"`
	Importance       string      `json:"importance"`
	IsRead           bool        `json:"isRead"`
	IsDraft          bool        `json:"isDraft"`
	HasAttachments   bool        `json:"hasAttachments"`
	WebLink          string      `json:"webLink"`
	From             *Recipient  `json:"from"`
	Sender           *Recipient  `json:"sender"`
	ToRecipients     []Recipient `json:"toRecipients"`
	CcRecipients     []Recipient `json:"ccRecipients"`

	Raw json.RawMessage `json:"-"`
}

// Attachment is a Graph attachment resource without its content bytes
type Attachment struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	ContentType          string     `json:"contentType"`
	Size                 int64      `json:"size"`
	IsInline             bool       `json:"isInline"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime"`

	Raw json.RawMessage `json:"-"`
}

// Organization is the tenant resource returned by /organization
type Organization struct {
	ID              string           `json:"id"`
	DisplayName     string           `json:"displayName"`
	TenantType      string           `json:"tenantType"`
	VerifiedDomains []VerifiedDomain `json:"verifiedDomains"`
}

// VerifiedDomain is a domain registered on the tenant
type VerifiedDomain struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
}

// page is one response of a paginated listing
type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// MessageQuery scopes a mailbox listing to one user and a received-date window
type MessageQuery struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
	PageSize  int
}
