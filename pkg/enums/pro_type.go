package enums

import "fmt"

// ProType identifies which collection society issued a statement.
type ProType string

const (
	ProTypeBMI   ProType = "bmi"
	ProTypeASCAP ProType = "ascap"
	ProTypeSESAC ProType = "sesac"
	ProTypeMLC   ProType = "mlc"
)

var validProTypes = []ProType{
	ProTypeBMI,
	ProTypeASCAP,
	ProTypeSESAC,
	ProTypeMLC,
}

// String implements fmt.Stringer.
func (p ProType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProType.
func (p ProType) IsValid() bool {
	for _, candidate := range validProTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// UsesCompositeRowKey reports whether statements of this type identify rows by
// title + publisher IPI + platform instead of title alone. MLC statements carry
// multiple publisher shares of the same work, so the title is ambiguous.
func (p ProType) UsesCompositeRowKey() bool {
	return p == ProTypeMLC
}

// ParseProType converts raw input into a ProType.
func ParseProType(value string) (ProType, error) {
	for _, candidate := range validProTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pro type %q", value)
}
