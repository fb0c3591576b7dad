package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

// payload is a loosely-typed JSON object. Clients send the same field under
// several spellings; lookups name every accepted alias so the rest of the
// service only ever sees the canonical value.
type payload map[string]json.RawMessage

func decodePayload(r *http.Request) (payload, error) {
	var p payload
	if err := httpx.DecodeJSON(r, &p); err != nil {
		return nil, model.Validation("invalid_json", "request body must be a JSON object")
	}
	if p == nil {
		return nil, model.Validation("invalid_json", "request body must be a JSON object")
	}
	return p, nil
}

func (p payload) raw(names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		if v, ok := p[n]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// str returns the first alias present as a string. Numbers are rendered in
// their JSON form.
func (p payload) str(names ...string) string {
	v, ok := p.raw(names...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(v))
}

// id returns the first alias present as a positive integer id. Numeric
// strings are accepted, and so are zero and "" as "absent".
func (p payload) id(field string, names ...string) (*int64, error) {
	v, ok := p.raw(names...)
	if !ok {
		return nil, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, model.Validation("invalid_"+field, field+" must be a number")
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if n == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil || i < 0 {
		return nil, model.Validation("invalid_"+field, field+" must be a positive integer")
	}
	if i == 0 {
		return nil, nil
	}
	return &i, nil
}

// boolean returns the first alias present as a bool, or nil.
func (p payload) boolean(names ...string) (*bool, error) {
	v, ok := p.raw(names...)
	if !ok {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return &b, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return &parsed, nil
		}
	}
	return nil, model.Validation("invalid_"+names[0], names[0]+" must be a boolean")
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return v
}
