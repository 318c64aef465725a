// Package checkout defines the metadata a checkout session carries from cart to
// payment confirmation. Parsing is strict: unknown fields, missing keys and
// out-of-range values are rejected.
package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxValueLength is the provider's limit for a single metadata value.
const MaxValueLength = 500

// MaxLineQuantity bounds a single line; it must match the quantity tag on
// LineSnapshot.
const MaxLineQuantity = 100

// Metadata keys written on every checkout session.
const (
	KeyUserID      = "user_id"
	KeyCartSession = "cart_session"
	KeyCartItems   = "cart_items"
)

var validate = validator.New()

// LineSnapshot is a cart line frozen at checkout time.
type LineSnapshot struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name" validate:"required,max=120"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"min=1,max=100"`
}

// Metadata is the typed form of a checkout session's metadata.
type Metadata struct {
	UserID      uuid.UUID
	CartSession string
	Items       []LineSnapshot
}

// MetadataError reports why metadata could not be encoded or parsed.
type MetadataError struct {
	Key    string
	Reason string
	Err    error
}

func (e *MetadataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout metadata %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("checkout metadata %s: %s", e.Key, e.Reason)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// Encode renders m as provider metadata, enforcing the per-value size limit.
func (m Metadata) Encode() (map[string]string, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	items, err := json.Marshal(m.Items)
	if err != nil {
		return nil, &MetadataError{Key: KeyCartItems, Reason: "encode", Err: err}
	}
	out := map[string]string{
		KeyUserID:    m.UserID.String(),
		KeyCartItems: string(items),
	}
	if m.CartSession != "" {
		out[KeyCartSession] = m.CartSession
	}
	for key, value := range out {
		if len(value) > MaxValueLength {
			return nil, &MetadataError{Key: key, Reason: fmt.Sprintf("value exceeds %d characters", MaxValueLength)}
		}
	}
	return out, nil
}

// Parse decodes provider metadata. Any deviation from the schema fails with a
// *MetadataError.
func Parse(raw map[string]string) (*Metadata, error) {
	if raw == nil {
		return nil, &MetadataError{Key: KeyUserID, Reason: "metadata missing"}
	}
	userRaw := strings.TrimSpace(raw[KeyUserID])
	if userRaw == "" {
		return nil, &MetadataError{Key: KeyUserID, Reason: "missing"}
	}
	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return nil, &MetadataError{Key: KeyUserID, Reason: "not a uuid", Err: err}
	}

	itemsRaw := raw[KeyCartItems]
	if strings.TrimSpace(itemsRaw) == "" {
		return nil, &MetadataError{Key: KeyCartItems, Reason: "missing"}
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(itemsRaw)))
	decoder.DisallowUnknownFields()
	var items []LineSnapshot
	if err := decoder.Decode(&items); err != nil {
		return nil, &MetadataError{Key: KeyCartItems, Reason: "malformed", Err: err}
	}
	if decoder.More() {
		return nil, &MetadataError{Key: KeyCartItems, Reason: "trailing data"}
	}

	m := &Metadata{
		UserID:      userID,
		CartSession: strings.TrimSpace(raw[KeyCartSession]),
		Items:       items,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m Metadata) validate() error {
	if m.UserID == uuid.Nil {
		return &MetadataError{Key: KeyUserID, Reason: "missing"}
	}
	if len(m.Items) == 0 {
		return &MetadataError{Key: KeyCartItems, Reason: "no items"}
	}
	for i, item := range m.Items {
		if item.ID == uuid.Nil {
			return &MetadataError{Key: KeyCartItems, Reason: fmt.Sprintf("item %d: id missing", i)}
		}
		if item.Price.IsNegative() {
			return &MetadataError{Key: KeyCartItems, Reason: fmt.Sprintf("item %d: negative price", i)}
		}
		if err := validate.Struct(item); err != nil {
			return &MetadataError{Key: KeyCartItems, Reason: fmt.Sprintf("item %d: invalid", i), Err: err}
		}
	}
	return nil
}
