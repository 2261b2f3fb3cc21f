package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
)

var validStatus = regexp.MustCompile(`^(200|301|404)$`)

// formError is a missing or malformed form field.
type formError struct {
	field string
	msg   string
}

func (e *formError) Error() string { return e.msg }

// reduceRequested reads the reduceurl flag. Anything but "false" reduces.
func reduceRequested(r *http.Request) bool {
	return !strings.EqualFold(strings.TrimSpace(r.FormValue("reduceurl")), "false")
}

// formURI returns the normalized uri field.
func formURI(r *http.Request) (string, error) {
	if _, ok := r.Form["uri"]; !ok {
		return "", &formError{field: "uri", msg: "uri parameter required"}
	}
	return domain.NormalizeURI(r.Form.Get("uri"), reduceRequested(r)), nil
}

// parseRegister builds a RegisterRequest from a parsed form.
func parseRegister(r *http.Request, uri string) (manager.RegisterRequest, error) {
	if _, ok := r.Form["status"]; !ok {
		return manager.RegisterRequest{}, &formError{field: "status", msg: "status parameter required"}
	}
	raw := r.Form.Get("status")
	if !validStatus.MatchString(raw) {
		return manager.RegisterRequest{}, &formError{field: "status", msg: "Bad value for status: '" + raw + "'"}
	}
	status, _ := strconv.Atoi(raw)

	req := manager.RegisterRequest{
		URI:    uri,
		Status: status,
		Tags:   unpackTags(r.Form.Get("tags")),
		Pairs:  unpackPairs(r.Form.Get("pairs")),
	}
	if loc := r.Form.Get("location"); loc != "" {
		req.Location = &loc
	}
	return req, nil
}

// unpackTags decodes a JSON list. Scalars become strings, everything else
// is dropped. Anything that is not a list means "not provided".
func unpackTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []any
	if err := decodeJSON(raw, &items); err != nil || items == nil {
		return nil
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := scalar(item); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// unpackPairs decodes a JSON object with the same rules as unpackTags.
// Values are percent-decoded.
func unpackPairs(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var obj map[string]any
	if err := decodeJSON(raw, &obj); err != nil || obj == nil {
		return nil
	}
	pairs := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := scalar(v)
		if !ok {
			continue
		}
		if decoded, err := url.PathUnescape(s); err == nil {
			s = decoded
		}
		pairs[k] = s
	}
	return pairs
}

func decodeJSON(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
