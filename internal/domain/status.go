package domain

// Status is the lifecycle state of a tracked URI.
// The zero value means no status has been assigned yet.
type Status int

const (
	StatusUnset Status = iota
	StatusFound
	StatusRedirected
	StatusNotFound
)

// transitions lists, per current status, every status it may move to.
// StatusRedirected is a sink.
var transitions = map[Status][]Status{
	StatusFound:      {StatusFound, StatusRedirected, StatusNotFound},
	StatusRedirected: {StatusRedirected},
	StatusNotFound:   {StatusFound, StatusRedirected, StatusNotFound},
}

// StatusFromCode maps an HTTP status code to its lifecycle class.
// Only 2xx, 3xx and 4xx are supported.
func StatusFromCode(code int) (Status, error) {
	switch {
	case code >= 200 && code < 300:
		return StatusFound, nil
	case code >= 300 && code < 400:
		return StatusRedirected, nil
	case code >= 400 && code < 500:
		return StatusNotFound, nil
	default:
		return StatusUnset, NewError(CodeUnsupportedStatus, "status", "status %d not supported", code)
	}
}

// Code returns the canonical HTTP status code for s.
func (s Status) Code() int {
	switch s {
	case StatusFound:
		return 200
	case StatusRedirected:
		return 301
	case StatusNotFound:
		return 404
	default:
		return 0
	}
}

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusRedirected:
		return "redirected"
	case StatusNotFound:
		return "notfound"
	default:
		return "unset"
	}
}

// CanTransitionTo reports whether the transition table allows s -> next.
// An unset status may only move to StatusFound.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusUnset {
		return next == StatusFound
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
