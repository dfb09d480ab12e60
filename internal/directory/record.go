// Package directory retrieves user records from a directory service.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for caller-checkable conditions.
var (
	// ErrSource marks failures of the directory itself (connect, bind, search).
	// They are fatal to a batch because no records exist to iterate.
	ErrSource = errors.New("directory: source unavailable")
	// ErrMissingField marks a record that lacks an attribute needed downstream.
	ErrMissingField = errors.New("directory: missing required field")
)

// Source returns the user records matching filter, in source order.
type Source interface {
	Search(ctx context.Context, filter string) ([]Record, error)
}

// Record is a snapshot of one directory user. It is built once per search
// result and never mutated afterwards.
type Record struct {
	ID          string `yaml:"id" json:"id"`
	DN          string `yaml:"dn" json:"dn,omitempty"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	GivenName   string `yaml:"given_name" json:"given_name"`
	Surname     string `yaml:"surname" json:"surname"`
	Company     string `yaml:"company" json:"company"`
	Email       string `yaml:"email" json:"email"`
	WorkPhone   string `yaml:"work_phone" json:"work_phone"`
	MobilePhone string `yaml:"mobile_phone" json:"mobile_phone"`
	Title       string `yaml:"title" json:"title"`
}

// Identity returns the most stable identifier available for the record.
func (r Record) Identity() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.DN != "":
		return r.DN
	default:
		return r.DisplayName
	}
}

// Validate checks the fields the output filename depends on. Every other
// field may be empty.
func (r Record) Validate() error {
	if strings.TrimSpace(r.GivenName) == "" {
		return fmt.Errorf("%w: given name", ErrMissingField)
	}
	if strings.TrimSpace(r.Surname) == "" {
		return fmt.Errorf("%w: surname", ErrMissingField)
	}
	return nil
}

// field returns the value of a record key as used in fixture files and
// simple filters. ok is false for unknown keys.
func (r Record) field(key string) (value string, ok bool) {
	switch key {
	case "id":
		return r.ID, true
	case "dn":
		return r.DN, true
	case "display_name":
		return r.DisplayName, true
	case "given_name":
		return r.GivenName, true
	case "surname":
		return r.Surname, true
	case "company":
		return r.Company, true
	case "email":
		return r.Email, true
	case "work_phone":
		return r.WorkPhone, true
	case "mobile_phone":
		return r.MobilePhone, true
	case "title":
		return r.Title, true
	}
	return "", false
}
