package memory

import "fmt"

// ConstraintError mirrors the table constraints of the relational schema.
type ConstraintError struct {
	Kind       string
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("memory store: %s constraint %q violated", e.Kind, e.Constraint)
}

func errDuplicate(constraint string) error {
	return &ConstraintError{Kind: "unique", Constraint: constraint}
}

func errCheck(constraint string) error {
	return &ConstraintError{Kind: "check", Constraint: constraint}
}
