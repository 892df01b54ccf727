package dispatcher

import (
	"bytes"
	"encoding/json"

	"github.com/emeraldgrove/arcade/internal/models"
)

// Inbound command payloads. Field names follow the wire protocol the
// stations speak; validation failures cause the command to be dropped,
// the same fate as an undecodable payload.

type WalletGetCommand struct {
	ReqID    string `json:"reqId" validate:"required"`
	DeviceID string `json:"deviceId" validate:"required"`
	TagUID   string `json:"tagUid" validate:"required"`
}

type WalletDebitCommand struct {
	ReqID       string `json:"reqId" validate:"required"`
	DeviceID    string `json:"deviceId" validate:"required"`
	TagUID      string `json:"tagUid" validate:"required"`
	AmountCents int64  `json:"amountCents" validate:"gte=0"`
}

type WalletCreditCommand struct {
	ReqID       string `json:"reqId" validate:"required"`
	DeviceID    string `json:"deviceId" validate:"required"`
	TagUID      string `json:"tagUid" validate:"required"`
	AmountCents int64  `json:"amountCents" validate:"gte=0"`
}

type PayoutNewCommand struct {
	PayoutID    string          `json:"payoutId"`
	Source      string          `json:"source"`
	AmountCents int64           `json:"amountCents" validate:"gte=0"`
	Meta        models.Metadata `json:"meta"`
}

type PayoutClaimCommand struct {
	ReqID    string `json:"reqId" validate:"required"`
	DeviceID string `json:"deviceId" validate:"required"`
	TagUID   string `json:"tagUid" validate:"required"`
	PayoutID string `json:"payoutId" validate:"required"`
}

type VoteCommand struct {
	DeviceID string     `json:"deviceId" validate:"required"`
	Step     FlexString `json:"step" validate:"required"`
	Choice   string     `json:"choice"`
}

// FlexString accepts a JSON string or number. Some station firmwares
// send numeric round steps; both forms tally into the same round.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
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
	*s = FlexString(data)
	return nil
}
