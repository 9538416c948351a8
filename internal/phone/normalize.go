package phone

import "strings"

// Number is a caller number reduced to ASCII digits and '+' characters.
type Number string

// Normalize strips every character that is not an ASCII digit or '+'.
// The '+' is kept wherever it appears, so "555+1234" is returned unchanged.
//
// An empty raw value means the webhook carried no number at all and is
// reported with ok == false. A non-empty value that filters down to nothing
// (for example "abc") is still a number: it returns ("", true).
func Normalize(raw string) (n Number, ok bool) {
	if raw == "" {
		return "", false
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c >= '0' && c <= '9') || c == '+' {
			b.WriteByte(c)
		}
	}
	return Number(b.String()), true
}

// String implements fmt.Stringer.
func (n Number) String() string {
	return string(n)
}
