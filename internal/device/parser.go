package device

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
)

// The device emits its outlets as p61..p64. Extraction is regex based so extra
// whitespace, HTML wrappers and unrelated fields are tolerated. Power values
// end at the first non-digit, so fields without separators still match.
var (
	legacyPowerPattern = regexp.MustCompile(`p6(\d)[ \t]*=[ \t]*([0-9]+)`)
	legacyNamePattern  = regexp.MustCompile(`p6(\d)_name[ \t]*=[ \t]*([A-Za-z0-9]+)`)
)

// ParseLegacyPower extracts power states from a legacy getpower body.
// Outlets outside 1-4 and values other than 0/1 are omitted.
func ParseLegacyPower(body string) Delta {
	delta := make(Delta)
	for _, m := range legacyPowerPattern.FindAllStringSubmatch(body, -1) {
		id, ok := legacySocket(m[1])
		if !ok {
			continue
		}
		var power PowerState
		switch m[2] {
		case "1":
			power = PowerOn
		case "0":
			power = PowerOff
		default:
			continue
		}
		upd := delta[id]
		upd.Power = power
		delta[id] = upd
	}
	return delta
}

// ParseLegacyNames extracts socket names from a legacy getpowername body.
func ParseLegacyNames(body string) Delta {
	delta := make(Delta)
	for _, m := range legacyNamePattern.FindAllStringSubmatch(body, -1) {
		id, ok := legacySocket(m[1])
		if !ok {
			continue
		}
		upd := delta[id]
		upd.Name = m[2]
		delta[id] = upd
	}
	return delta
}

func legacySocket(digit string) (SocketID, bool) {
	n, err := strconv.Atoi(digit)
	if err != nil {
		return 0, false
	}
	id := SocketID(n)
	return id, id.Valid()
}

// jsonPowerResponse matches the body of GET /json.cmd?getpower
type jsonPowerResponse struct {
	Result *struct {
		RL *[]jsonSocket `json:"RL"`
	} `json:"result"`
}

type jsonSocket struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	State json.RawMessage `json:"state"`
}

// ParseJSONPower extracts power states and names from a JSON getpower body.
// A body without result.RL is a protocol error, never a partial result.
func ParseJSONPower(body []byte) (Delta, error) {
	cleaned, err := CleanJSONResponse(body)
	if err != nil {
		return nil, NewProtocolError("no JSON object in power response", err)
	}

	var resp jsonPowerResponse
	if err := json.Unmarshal(cleaned, &resp); err != nil {
		return nil, NewProtocolError("failed to decode JSON power response", err)
	}
	if resp.Result == nil || resp.Result.RL == nil {
		return nil, NewProtocolError("JSON power response has no result.RL", nil)
	}

	delta := make(Delta)
	for _, s := range *resp.Result.RL {
		id := SocketID(s.ID)
		if !id.Valid() {
			continue
		}
		upd := SocketUpdate{Name: s.Name}
		switch jsonStateValue(s.State) {
		case "1":
			upd.Power = PowerOn
		case "0":
			upd.Power = PowerOff
		}
		if upd.Power == PowerUnset && upd.Name == "" {
			continue
		}
		delta[id] = upd
	}
	return delta, nil
}

// jsonStateValue normalizes state values sent as 1 or "1".
func jsonStateValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// CleanJSONResponse extracts the first JSON object from a device response.
//
// Embedded HTTP stacks sometimes wrap or trail the JSON with HTML:
//
//	<html><body>{"result":{"RL":[...]}}</body></html>
//
// Braces inside strings are ignored while matching.
func CleanJSONResponse(data []byte) ([]byte, error) {
	start := -1
	for i, b := range data {
		if b == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, errors.New("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(data); i++ {
		b := data[i]

		if escaped {
			escaped = false
			continue
		}
		if b == '\\' {
			escaped = true
			continue
		}
		if b == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch b {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return data[start : i+1], nil
				}
			}
		}
	}

	return nil, errors.New("unclosed JSON object in response")
}
