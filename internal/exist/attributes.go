package exist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/verte-zerg/rizexist/internal/model"
)

const ownedPageSize = 100

// ItemError reports an item Exist rejected inside an otherwise successful batch.
type ItemError struct {
	Op      string
	Name    string
	Code    string
	Message string
}

func (e *ItemError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("exist %s %s failed: %s", e.Op, e.Name, msg)
}

type batchResult struct {
	Success []json.RawMessage `json:"success"`
	Failed  []failedItem      `json:"failed"`
}

type failedItem struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

func (r batchResult) err(op, name string) error {
	if len(r.Failed) == 0 {
		return nil
	}
	f := r.Failed[0]
	return &ItemError{Op: op, Name: name, Code: f.ErrorCode, Message: f.Error}
}

type attributePayload struct {
	Name      string          `json:"name"`
	Label     string          `json:"label"`
	Group     json.RawMessage `json:"group"`
	ValueType int             `json:"value_type"`
	Manual    bool            `json:"manual"`
	Active    bool            `json:"active"`
}

type ownedPage struct {
	Next    string             `json:"next"`
	Results []attributePayload `json:"results"`
}

// ownedResponse accepts the paginated envelope or a bare list.
type ownedResponse struct {
	ownedPage
}

func (o *ownedResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &o.Results)
	}
	return json.Unmarshal(data, &o.ownedPage)
}

// OwnedAttributes lists the attributes this client owns, following pagination.
func (c *Client) OwnedAttributes(ctx context.Context) ([]model.Attribute, error) {
	var attrs []model.Attribute
	target := fmt.Sprintf("attributes/owned/?limit=%d", ownedPageSize)
	for target != "" {
		var page ownedResponse
		if err := c.do(ctx, http.MethodGet, target, nil, &page); err != nil {
			return nil, err
		}
		for _, a := range page.Results {
			attrs = append(attrs, model.Attribute{
				Name:      a.Name,
				Label:     a.Label,
				Group:     groupName(a.Group),
				ValueType: a.ValueType,
				Manual:    a.Manual,
				Active:    a.Active,
			})
		}
		target = page.Next
	}
	return attrs, nil
}

// CreateAttribute creates a new custom attribute. It fails when the attribute already exists.
func (c *Client) CreateAttribute(ctx context.Context, spec model.AttributeSpec) error {
	payload := []map[string]any{{
		"label":      spec.Label,
		"value_type": spec.ValueType.Code(),
		"group":      spec.Group,
		"manual":     false,
	}}
	var result batchResult
	if err := c.do(ctx, http.MethodPost, "attributes/create/", payload, &result); err != nil {
		return err
	}
	return result.err("create", spec.Name)
}

// AcquireAttribute takes ownership of an attribute by name.
func (c *Client) AcquireAttribute(ctx context.Context, name string) error {
	payload := []map[string]any{{"name": name, "active": true}}
	var result batchResult
	if err := c.do(ctx, http.MethodPost, "attributes/acquire/", payload, &result); err != nil {
		return err
	}
	return result.err("acquire", name)
}

// ReleaseAttribute gives up ownership of an attribute by name.
func (c *Client) ReleaseAttribute(ctx context.Context, name string) error {
	payload := []map[string]any{{"name": name}}
	var result batchResult
	if err := c.do(ctx, http.MethodPost, "attributes/release/", payload, &result); err != nil {
		return err
	}
	return result.err("release", name)
}

// UpdateAttribute upserts the value of an attribute for one date.
func (c *Client) UpdateAttribute(ctx context.Context, name string, date time.Time, value int64) error {
	payload := []map[string]any{{
		"name":  name,
		"date":  date.Format(model.DateLayout),
		"value": value,
	}}
	var result batchResult
	if err := c.do(ctx, http.MethodPost, "attributes/update/", payload, &result); err != nil {
		return err
	}
	return result.err("update", name)
}

func groupName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var group struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &group); err == nil {
		return strings.TrimSpace(group.Name)
	}
	return ""
}
