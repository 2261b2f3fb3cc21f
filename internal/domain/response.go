package domain

import "time"

// Response is the external view of a Resource.
type Response struct {
	URI      string            `json:"uri"`
	Status   int               `json:"status"`
	Created  string            `json:"created"`
	Updated  string            `json:"updated"`
	Location string            `json:"location,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Pairs    map[string]string `json:"pairs,omitempty"`
}

// Project maps r to its Response. The id and store metadata are left out.
func Project(r *Resource) Response {
	return Response{
		URI:      r.URI(),
		Status:   r.Status().Code(),
		Created:  formatTime(r.Created()),
		Updated:  formatTime(r.Updated()),
		Location: r.Location(),
		Tags:     r.Tags(),
		Pairs:    r.Pairs(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
