package classify

import "fmt"

// Kind is the closed taxonomy of SQL failures.
type Kind int

const (
	Other Kind = iota
	ColumnName
	TableName
	Syntax
	TypeMismatch
	Permission
	Timeout
)

var kindNames = map[Kind]string{
	Other:        "other",
	ColumnName:   "column_name",
	TableName:    "table_name",
	Syntax:       "syntax",
	TypeMismatch: "type_mismatch",
	Permission:   "permission",
	Timeout:      "timeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return Other, fmt.Errorf("unknown error kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Retryable reports whether regenerating the SQL can plausibly fix a failure
// of this kind, ignoring the attempt budget.
func (k Kind) Retryable() bool {
	switch k {
	case ColumnName, TableName, Syntax, TypeMismatch:
		return true
	}
	return false
}
