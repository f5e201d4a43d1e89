package enums

import "fmt"

// MessageRole identifies which side of the table produced a transcript message.
type MessageRole string

const (
	MessageRoleBrandAgent    MessageRole = "brand_agent"
	MessageRoleSupplierAgent MessageRole = "supplier_agent"
	MessageRoleSystem        MessageRole = "system"
)

var validMessageRoles = []MessageRole{
	MessageRoleBrandAgent,
	MessageRoleSupplierAgent,
	MessageRoleSystem,
}

// String implements fmt.Stringer.
func (m MessageRole) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MessageRole.
func (m MessageRole) IsValid() bool {
	for _, candidate := range validMessageRoles {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMessageRole converts raw input into a MessageRole.
func ParseMessageRole(value string) (MessageRole, error) {
	for _, candidate := range validMessageRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message role %q", value)
}
