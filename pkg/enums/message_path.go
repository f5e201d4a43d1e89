package enums

// MessagePath tags how a negotiation message was produced. The state machine
// is agnostic to the path; it only travels on the generation request.
type MessagePath string

const (
	MessagePathFast MessagePath = "fast"
	MessagePathFull MessagePath = "full"
)

// String implements fmt.Stringer.
func (m MessagePath) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MessagePath.
func (m MessagePath) IsValid() bool {
	return m == MessagePathFast || m == MessagePathFull
}
