package hub

import (
	"encoding/json"
	"errors"
)

var errEmptyPayload = errors.New("empty payload")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(raw, v)
}
