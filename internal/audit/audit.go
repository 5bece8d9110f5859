// Package audit maintains the structured audit trail stored in the JSON
// metadata columns of payment records and wallet transactions.
//
// A metadata document is a JSON object. Entries written by this service live
// under the "audit" key; any other top-level keys are legacy data written by
// older clients and are preserved verbatim.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Kind tags an audit entry with the action that produced it.
type Kind string

const (
	KindCreated           Kind = "created"
	KindGatewaySync       Kind = "gateway_sync"
	KindStatusOverride    Kind = "status_override"
	KindManualPayment     Kind = "manual_payment"
	KindWalletPayment     Kind = "wallet_payment"
	KindRefund            Kind = "refund"
	KindInvoiceCancelled  Kind = "invoice_cancelled"
	KindInvoiceResent     Kind = "invoice_resent"
	KindBalanceAdjustment Kind = "balance_adjustment"
	KindTopUp             Kind = "top_up"
	KindDataCleanup       Kind = "data_cleanup"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCreated, KindGatewaySync, KindStatusOverride, KindManualPayment,
		KindWalletPayment, KindRefund, KindInvoiceCancelled, KindInvoiceResent,
		KindBalanceAdjustment, KindTopUp, KindDataCleanup:
		return true
	}
	return false
}

// Entry is one audit record. Fields irrelevant to a Kind stay empty.
type Entry struct {
	Kind          Kind      `json:"kind"`
	At            time.Time `json:"at"`
	ActorID       string    `json:"actor_id,omitempty"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	GatewayStatus string    `json:"gateway_status,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Mode          string    `json:"mode,omitempty"`
}

// Document is a decoded metadata value.
type Document struct {
	Entries []Entry
	Legacy  map[string]json.RawMessage
}

// ErrInvalidDocument is returned when stored metadata does not match the schema.
var ErrInvalidDocument = errors.New("invalid audit metadata")

const entriesKey = "audit"

// legacyRawKey holds metadata that was not a JSON object at all.
const legacyRawKey = "legacy_raw"

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "audit": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind", "at"],
        "properties": {
          "kind": {
            "type": "string",
            "enum": ["created", "gateway_sync", "status_override", "manual_payment", "wallet_payment",
                     "refund", "invoice_cancelled", "invoice_resent", "balance_adjustment", "top_up",
                     "data_cleanup"]
          },
          "at": { "type": "string", "format": "date-time" },
          "actor_id": { "type": "string" },
          "from": { "type": "string" },
          "to": { "type": "string" },
          "gateway_status": { "type": "string" },
          "amount": { "type": "string", "pattern": "^-?[0-9]+(\\.[0-9]+)?$" },
          "reference": { "type": "string" },
          "transaction_id": { "type": "string" },
          "reason": { "type": "string" },
          "mode": { "type": "string", "enum": ["set", "delta"] }
        }
      }
    }
  }
}`

var documentLoader = gojsonschema.NewStringLoader(documentSchema)

// Validate checks raw metadata against the document schema. Empty metadata is valid.
func Validate(raw []byte) error {
	if isEmpty(raw) {
		return nil
	}
	result, err := gojsonschema.Validate(documentLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if !result.Valid() {
		var sb strings.Builder
		for i, e := range result.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidDocument, sb.String())
	}
	return nil
}

// Decode validates and decodes raw metadata.
func Decode(raw []byte) (Document, error) {
	doc := Document{Legacy: map[string]json.RawMessage{}}
	if isEmpty(raw) {
		return doc, nil
	}
	if err := Validate(raw); err != nil {
		return Document{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for k, v := range fields {
		if k == entriesKey {
			if err := json.Unmarshal(v, &doc.Entries); err != nil {
				return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
			}
			continue
		}
		doc.Legacy[k] = v
	}
	return doc, nil
}

// Encode serializes the document, keeping legacy keys at the top level.
func (d Document) Encode() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Legacy)+1)
	for k, v := range d.Legacy {
		out[k] = v
	}
	if len(d.Entries) > 0 {
		b, err := json.Marshal(d.Entries)
		if err != nil {
			return nil, fmt.Errorf("marshal audit entries: %w", err)
		}
		out[entriesKey] = b
	}
	return json.Marshal(out)
}

// Last returns the most recent entry, if any.
func (d Document) Last() (Entry, bool) {
	if len(d.Entries) == 0 {
		return Entry{}, false
	}
	return d.Entries[len(d.Entries)-1], true
}

// Append adds e to the document in raw and returns the new encoding. Metadata
// that fails validation is kept as a string under "legacy_raw" rather than
// dropped, so appending never loses stored data.
func Append(raw []byte, e Entry) ([]byte, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDocument, e.Kind)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	doc, err := Decode(raw)
	if err != nil {
		if !errors.Is(err, ErrInvalidDocument) {
			return nil, err
		}
		quoted, merr := json.Marshal(string(raw))
		if merr != nil {
			return nil, fmt.Errorf("preserve legacy metadata: %w", merr)
		}
		doc = Document{Legacy: map[string]json.RawMessage{legacyRawKey: quoted}}
	}
	doc.Entries = append(doc.Entries, e)
	return doc.Encode()
}

// New returns a document holding a single entry.
func New(e Entry) ([]byte, error) {
	return Append(nil, e)
}

func isEmpty(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
