// internal/recorder/response.go
package recorder

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
)

// Response is a bot response as captured by a test: nothing, one text, or an
// ordered list. It marshals to null, a JSON string, or a JSON array.
type Response struct {
	texts []string
	multi bool
}

// Text is a single-text response.
func Text(s string) Response { return Response{texts: []string{s}} }

// Texts is a multi-message response. The slice is copied.
func Texts(ss []string) Response {
	return Response{texts: append([]string(nil), ss...), multi: true}
}

func (r Response) clone() Response {
	return Response{texts: append([]string(nil), r.texts...), multi: r.multi}
}

// IsZero reports whether no response was recorded.
func (r Response) IsZero() bool { return !r.multi && len(r.texts) == 0 }

// IsList reports whether the response was recorded as a list.
func (r Response) IsList() bool { return r.multi }

// Values returns a copy of the recorded texts.
func (r Response) Values() []string { return append([]string(nil), r.texts...) }

// Last returns the final text, or "" for an empty response.
func (r Response) Last() string {
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

// Join concatenates the texts with sep.
func (r Response) Join(sep string) string { return strings.Join(r.texts, sep) }

func (r Response) String() string { return r.Join("\n") }

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.IsZero():
		return []byte("null"), nil
	case r.multi:
		if r.texts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.texts)
	default:
		return json.Marshal(r.texts[0])
	}
}

func (r *Response) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = Response{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Text(s)
	case len(data) > 0 && data[0] == '[':
		var ss []string
		if err := json.Unmarshal(data, &ss); err != nil {
			return err
		}
		*r = Texts(ss)
	default:
		return fmt.Errorf("response must be null, a string or an array of strings, got %s", data)
	}
	return nil
}
