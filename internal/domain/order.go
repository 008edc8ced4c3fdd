package domain

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PurchaseLine is one product of a registered purchase, as reported by the orchestrator.
type PurchaseLine struct {
	ID                   FlexString      `json:"id,omitempty"`
	Name                 string          `json:"nombre"`
	Quantity             int             `json:"cantidad"`
	UnitPrice            decimal.Decimal `json:"precio_unitario"`
	RequiresPrescription bool            `json:"requiere_receta,omitempty"`
}

// Purchase is an entry of the buyer's purchase history.
type Purchase struct {
	ID       FlexString      `json:"id,omitempty"`
	Date     string          `json:"fecha,omitempty"`
	Total    decimal.Decimal `json:"total"`
	Products []PurchaseLine  `json:"productos"`
}

// FlexString decodes identifiers the remote services send either as JSON
// strings or as numbers. null decodes to "".
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string {
	return string(s)
}
