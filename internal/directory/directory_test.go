package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const fixture = `
- id: jdoe
  display_name: Jane Doe
  given_name: Jane
  surname: Doe
  company: Acme
  email: jane@acme.test
  work_phone: "+1-555-0100"
  mobile_phone: "+1-555-0101"
  title: Engineer
- id: rroe
  display_name: Richard Roe
  given_name: Richard
  surname: Roe
  company: Globex
  title: Engineer
- id: nobody
  display_name: Service Account
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{name: "complete", rec: Record{GivenName: "Jane", Surname: "Doe"}},
		{name: "empty email allowed", rec: Record{GivenName: "Jane", Surname: "Doe", Email: ""}},
		{name: "missing given", rec: Record{Surname: "Doe"}, wantErr: true},
		{name: "missing surname", rec: Record{GivenName: "Jane"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr && !errors.Is(err, ErrMissingField) {
				t.Errorf("Validate() = %v, want ErrMissingField", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestRecord_Identity(t *testing.T) {
	if got := (Record{ID: "jdoe", DN: "cn=x"}).Identity(); got != "jdoe" {
		t.Errorf("Identity() = %q, want jdoe", got)
	}
	if got := (Record{DN: "cn=x", DisplayName: "X"}).Identity(); got != "cn=x" {
		t.Errorf("Identity() = %q, want DN fallback", got)
	}
	if got := (Record{DisplayName: "X"}).Identity(); got != "X" {
		t.Errorf("Identity() = %q, want display name fallback", got)
	}
}

func TestFileSource_AllRecordsInOrder(t *testing.T) {
	// Given a fixture with three users
	src := NewFileSource(writeFixture(t, fixture))

	// When searching with the wildcard filter
	recs, err := src.Search(context.Background(), "*")

	// Then all three come back in file order
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	want := []string{"jdoe", "rroe", "nobody"}
	for i, id := range want {
		if recs[i].ID != id {
			t.Errorf("recs[%d].ID = %q, want %q", i, recs[i].ID, id)
		}
	}
	if recs[0].WorkPhone != "+1-555-0100" {
		t.Errorf("work phone = %q", recs[0].WorkPhone)
	}
}

func TestFileSource_EqualityFilter(t *testing.T) {
	src := NewFileSource(writeFixture(t, fixture))

	recs, err := src.Search(context.Background(), "company=Globex")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "rroe" {
		t.Errorf("got %+v, want only rroe", recs)
	}
}

func TestFileSource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		filter string
	}{
		{name: "missing file", path: "/nonexistent/users.yaml"},
		{name: "bad filter", path: writeFixture(t, fixture), filter: "(objectClass=user)"},
		{name: "unknown key", path: writeFixture(t, fixture), filter: "shoe_size=9"},
		{name: "invalid yaml", path: writeFixture(t, "{{nope")},
		{name: "unknown field", path: writeFixture(t, "- nickname: jd\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSource(tt.path).Search(context.Background(), tt.filter)
			if !errors.Is(err, ErrSource) {
				t.Errorf("Search() = %v, want ErrSource", err)
			}
		})
	}
}

func TestFileSource_EmptyFile(t *testing.T) {
	recs, err := NewFileSource(writeFixture(t, "")).Search(context.Background(), "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records, want 0", len(recs))
	}
}

func TestRecordFromEntry_MapsAttributes(t *testing.T) {
	e := ldap.NewEntry("CN=Jane Doe,OU=Staff,DC=acme,DC=test", map[string][]string{
		"sAMAccountName":  {"jdoe"},
		"displayName":     {"Jane Doe"},
		"givenName":       {"Jane"},
		"sn":              {"Doe"},
		"company":         {"Acme"},
		"telephoneNumber": {"+1-555-0100"},
		"mobile":          {"+1-555-0101"},
		"title":           {"Engineer"},
	})

	r := recordFromEntry(e, "sAMAccountName")

	want := Record{
		ID:          "jdoe",
		DN:          "CN=Jane Doe,OU=Staff,DC=acme,DC=test",
		DisplayName: "Jane Doe",
		GivenName:   "Jane",
		Surname:     "Doe",
		Company:     "Acme",
		WorkPhone:   "+1-555-0100",
		MobilePhone: "+1-555-0101",
		Title:       "Engineer",
	}
	if r != want {
		t.Errorf("recordFromEntry() = %+v, want %+v", r, want)
	}
	if r.Email != "" {
		t.Errorf("absent mail should map to empty string, got %q", r.Email)
	}
}

func TestLDAPSource_UnreachableIsSourceError(t *testing.T) {
	src := NewLDAPSource(LDAPConfig{
		URL:     "ldap://127.0.0.1:1",
		BaseDN:  "DC=acme,DC=test",
		Timeout: time.Second,
	})

	_, err := src.Search(context.Background(), "")
	if !errors.Is(err, ErrSource) {
		t.Errorf("Search() = %v, want ErrSource", err)
	}
}

func TestLDAPSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLDAPSource(LDAPConfig{URL: "ldap://127.0.0.1:1"}).Search(ctx, "")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Search() = %v, want context.Canceled", err)
	}
}

func TestValidateFilter(t *testing.T) {
	if err := ValidateFilter(DefaultFilter); err != nil {
		t.Errorf("ValidateFilter(default) = %v", err)
	}
	if err := ValidateFilter("(&(objectClass=user)"); err == nil {
		t.Error("ValidateFilter(unbalanced) should fail")
	}
}
