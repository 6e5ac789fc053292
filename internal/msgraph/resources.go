package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

// DefaultPageSize is the $top used for message listings
const DefaultPageSize = 50

// Fields requested for messages and attachments. Bodies and content bytes
// are never pulled.
var (
	messageFields = []string{
		"id", "subject", "conversationId", "receivedDateTime", "sentDateTime",
		"importance", "isRead", "isDraft", "hasAttachments", "webLink",
		"from", "sender", "toRecipients", "ccRecipients",
	}
	attachmentFields = []string{
		"id", "name", "contentType", "size", "isInline", "lastModifiedDateTime",
	}
)

// FetchMetadata returns the service root document
func (c *Client) FetchMetadata(ctx context.Context) (json.RawMessage, error) {
	body, err := c.Request(ctx, "/")
	if err != nil {
		return nil, err
	}
	return body, nil
}

// FetchOrganization returns the tenant the credentials belong to, or nil if
// the directory reports none.
func (c *Client) FetchOrganization(ctx context.Context) (*Organization, error) {
	body, err := c.Request(ctx, "/organization")
	if err != nil || body == nil {
		return nil, err
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.APIError(c.resolve("/organization"), http.StatusOK, "", fmt.Sprintf("decode organization: %v", err))
	}
	if len(p.Value) == 0 {
		return nil, nil
	}

	var org Organization
	if err := json.Unmarshal(p.Value[0], &org); err != nil {
		return nil, errors.APIError(c.resolve("/organization"), http.StatusOK, "", fmt.Sprintf("decode organization: %v", err))
	}
	return &org, nil
}

// ValidateDirectoryPermissions checks that the application was granted
// Directory.Read.All.
func (c *Client) ValidateDirectoryPermissions(ctx context.Context) error {
	return c.EnforcePermission(ctx, c.resolve("/organization"), DirectoryReadAll)
}

// IterateUserMessages walks every message in the user's mailbox received
// within the query window. Records that cannot be decoded are logged and
// skipped.
func (c *Client) IterateUserMessages(ctx context.Context, q MessageQuery, fn func(*Message) error) error {
	if q.UserID == "" {
		return errors.ValidationError("message listing requires a user id")
	}

	endpoint := "/users/" + url.PathEscape(q.UserID) + "/messages?" + messageParams(q).Encode()

	return c.iterate(ctx, endpoint, func(raw json.RawMessage) error {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("skipping undecodable message", "user_id", q.UserID, "error", err)
			return nil
		}
		m.Raw = raw
		return fn(&m)
	})
}

// ListAttachments returns the attachment metadata of one message across
// every page.
func (c *Client) ListAttachments(ctx context.Context, userID, messageID string) ([]*Attachment, error) {
	params := url.Values{}
	params.Set("$select", strings.Join(attachmentFields, ","))
	endpoint := fmt.Sprintf("/users/%s/messages/%s/attachments?%s",
		url.PathEscape(userID), url.PathEscape(messageID), params.Encode())

	var attachments []*Attachment
	err := c.iterate(ctx, endpoint, func(raw json.RawMessage) error {
		var a Attachment
		if err := json.Unmarshal(raw, &a); err != nil {
			c.logger.Warn("skipping undecodable attachment", "message_id", messageID, "error", err)
			return nil
		}
		a.Raw = raw
		attachments = append(attachments, &a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

func messageParams(q MessageQuery) url.Values {
	params := url.Values{}

	var filters []string
	if !q.StartDate.IsZero() {
		filters = append(filters, "receivedDateTime ge "+q.StartDate.UTC().Format(time.RFC3339))
	}
	if !q.EndDate.IsZero() {
		filters = append(filters, "receivedDateTime le "+q.EndDate.UTC().Format(time.RFC3339))
	}
	if len(filters) > 0 {
		params.Set("$filter", strings.Join(filters, " and "))
	}

	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	params.Set("$top", strconv.Itoa(size))
	params.Set("$select", strings.Join(messageFields, ","))

	return params
}
