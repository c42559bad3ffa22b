package httpx

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// APIError is the failure half of the { ok, error, ...data } envelope.
type APIError struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// Payload is a decoded response: either envelope fields or a binary attachment.
type Payload struct {
	Status   int
	Fields   map[string]json.RawMessage
	Binary   []byte
	Filename string
}

func (p Payload) IsBinary() bool { return p.Binary != nil }

// Field decodes one top-level envelope key into v. A missing key is not an error.
func (p Payload) Field(key string, v interface{}) (bool, error) {
	raw, ok := p.Fields[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (p Payload) String(key string) string {
	var s string
	_, _ = p.Field(key, &s)
	return s
}

// Attachment reports whether the headers mark the body as a download.
func Attachment(h http.Header) (filename string, ok bool) {
	cd := h.Get("Content-Disposition")
	if cd == "" {
		return "", false
	}
	disp, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return "", strings.Contains(strings.ToLower(cd), "attachment")
	}
	return params["filename"], disp == "attachment"
}

// ParseFields never fails: a body that is not a JSON object yields an empty map.
func ParseFields(b []byte) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		return map[string]json.RawMessage{}
	}
	return fields
}

// Unsuccessful reports an explicit "ok": false in the envelope.
func (p Payload) Unsuccessful() bool {
	var ok bool
	found, err := p.Field("ok", &ok)
	return found && err == nil && !ok
}
