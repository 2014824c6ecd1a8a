package models

import (
	"fmt"
	"unicode/utf8"
)

const (
	maxFieldLength = 255
	MinGrade       = 0.0
	MaxGrade       = 100.0
)

// Student is a single student record.
type Student struct {
	ID        int64   `json:"id"`
	LastName  string  `json:"last_name"`
	FirstName string  `json:"first_name"`
	Faculty   string  `json:"faculty"`
	Course    string  `json:"course"`
	Grade     float64 `json:"grade"`
}

// StudentInput carries every field required to create a student.
type StudentInput struct {
	LastName  string  `json:"last_name"`
	FirstName string  `json:"first_name"`
	Faculty   string  `json:"faculty"`
	Course    string  `json:"course"`
	Grade     float64 `json:"grade"`
}

// StudentPatch carries a partial update. Nil fields are left unchanged.
type StudentPatch struct {
	LastName  *string  `json:"last_name,omitempty"`
	FirstName *string  `json:"first_name,omitempty"`
	Faculty   *string  `json:"faculty,omitempty"`
	Course    *string  `json:"course,omitempty"`
	Grade     *float64 `json:"grade,omitempty"`
}

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks that every field is present and within bounds.
func (in StudentInput) Validate() error {
	if err := validateText("last_name", in.LastName); err != nil {
		return err
	}
	if err := validateText("first_name", in.FirstName); err != nil {
		return err
	}
	if err := validateText("faculty", in.Faculty); err != nil {
		return err
	}
	if err := validateText("course", in.Course); err != nil {
		return err
	}
	return validateGrade(in.Grade)
}

// Validate checks the fields that are present.
func (p StudentPatch) Validate() error {
	texts := []struct {
		field string
		value *string
	}{
		{"last_name", p.LastName},
		{"first_name", p.FirstName},
		{"faculty", p.Faculty},
		{"course", p.Course},
	}
	for _, t := range texts {
		if t.value == nil {
			continue
		}
		if err := validateText(t.field, *t.value); err != nil {
			return err
		}
	}
	if p.Grade != nil {
		return validateGrade(*p.Grade)
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p StudentPatch) IsEmpty() bool {
	return p.LastName == nil && p.FirstName == nil && p.Faculty == nil && p.Course == nil && p.Grade == nil
}

// ToInput converts a patch that carries every field into a StudentInput.
// It is used to decode create requests so that an omitted grade is
// reported instead of read as zero.
func (p StudentPatch) ToInput() (StudentInput, error) {
	switch {
	case p.LastName == nil:
		return StudentInput{}, &ValidationError{Field: "last_name", Reason: "is required"}
	case p.FirstName == nil:
		return StudentInput{}, &ValidationError{Field: "first_name", Reason: "is required"}
	case p.Faculty == nil:
		return StudentInput{}, &ValidationError{Field: "faculty", Reason: "is required"}
	case p.Course == nil:
		return StudentInput{}, &ValidationError{Field: "course", Reason: "is required"}
	case p.Grade == nil:
		return StudentInput{}, &ValidationError{Field: "grade", Reason: "is required"}
	}
	return StudentInput{
		LastName:  *p.LastName,
		FirstName: *p.FirstName,
		Faculty:   *p.Faculty,
		Course:    *p.Course,
		Grade:     *p.Grade,
	}, nil
}

// Apply copies the present fields onto s.
func (p StudentPatch) Apply(s *Student) {
	if p.LastName != nil {
		s.LastName = *p.LastName
	}
	if p.FirstName != nil {
		s.FirstName = *p.FirstName
	}
	if p.Faculty != nil {
		s.Faculty = *p.Faculty
	}
	if p.Course != nil {
		s.Course = *p.Course
	}
	if p.Grade != nil {
		s.Grade = *p.Grade
	}
}

func validateText(field, value string) error {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if n > maxFieldLength {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", maxFieldLength)}
	}
	return nil
}

func validateGrade(g float64) error {
	// Written so that NaN fails too.
	if !(g >= MinGrade && g <= MaxGrade) {
		return &ValidationError{Field: "grade", Reason: fmt.Sprintf("must be between %g and %g", MinGrade, MaxGrade)}
	}
	return nil
}
