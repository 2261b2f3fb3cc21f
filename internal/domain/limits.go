package domain

// Limits bounds the free-form fields of a Resource.
type Limits struct {
	TagMaxLen         int // max length of a tag (alphanumeric, >= 1)
	PairKeyMaxLen     int // max length of a pair key (alphanumeric, >= 1)
	PairValueMaxBytes int // max byte length of a pair value
	URIMaxLen         int // max byte length of uri and location
}

// DefaultLimits returns the bounds used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		TagMaxLen:         20,
		PairKeyMaxLen:     20,
		PairValueMaxBytes: 100,
		URIMaxLen:         255,
	}
}

// isWord reports whether s matches ^[A-Za-z0-9]{1,max}$.
func isWord(s string, max int) bool {
	if len(s) == 0 || len(s) > max {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
