package audit

import (
	"encoding/json"
	"strings"
)

// Keys under which older clients stored gateway correlation ids.
var (
	legacyReferenceKeys   = []string{"tap_reference", "tapReference", "charge_id", "chargeId", "invoice_id", "invoiceId"}
	legacyTransactionKeys = []string{"tap_transaction_id", "tapTransactionId", "transaction_id", "transactionId"}
	legacyResponseKeys    = []string{"tap_response", "gateway_response", "tapResponse"}
)

// gatewayResponse is the subset of a stored Tap charge/invoice payload that
// carries correlation ids.
type gatewayResponse struct {
	ID        string `json:"id"`
	Reference struct {
		Transaction string `json:"transaction"`
		Payment     string `json:"payment"`
	} `json:"reference"`
}

// ExtractGatewayIDs looks for a gateway reference and transaction id in
// metadata. Audit entries win over legacy keys; the most recent entry that
// carries a value is used. Missing values are returned as "".
func ExtractGatewayIDs(raw []byte) (reference, transactionID string) {
	if isEmpty(raw) {
		return "", ""
	}

	doc, err := Decode(raw)
	if err == nil {
		for i := len(doc.Entries) - 1; i >= 0; i-- {
			if reference == "" {
				reference = doc.Entries[i].Reference
			}
			if transactionID == "" {
				transactionID = doc.Entries[i].TransactionID
			}
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return reference, transactionID
	}
	if reference == "" {
		reference = firstString(fields, legacyReferenceKeys)
	}
	if transactionID == "" {
		transactionID = firstString(fields, legacyTransactionKeys)
	}

	for _, key := range legacyResponseKeys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var resp gatewayResponse
		if err := json.Unmarshal(v, &resp); err != nil {
			continue
		}
		if reference == "" {
			reference = strings.TrimSpace(resp.ID)
		}
		if transactionID == "" {
			transactionID = strings.TrimSpace(resp.Reference.Payment)
		}
		if transactionID == "" {
			transactionID = strings.TrimSpace(resp.Reference.Transaction)
		}
	}
	return reference, transactionID
}

func firstString(fields map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
