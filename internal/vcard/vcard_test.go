package vcard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smileynet/qrcard/internal/directory"
)

func jane() directory.Record {
	return directory.Record{
		ID:          "jdoe",
		DisplayName: "Jane Doe",
		GivenName:   "Jane",
		Surname:     "Doe",
		Company:     "Acme",
		Email:       "jane@acme.test",
		WorkPhone:   "+1-555-0100",
		MobilePhone: "+1-555-0101",
		Title:       "Engineer",
	}
}

func TestBuild_FixedLineTemplate(t *testing.T) {
	p := Build(jane())

	want := strings.Join([]string{
		"BEGIN:VCARD",
		"VERSION:3.0",
		"N:Doe;Jane",
		"FN:Jane Doe",
		"ORG:Acme",
		"EMAIL:jane@acme.test",
		"TEL;TYPE=WORK,VOICE:+1-555-0100",
		"TEL;TYPE=CELL:+1-555-0101",
		"TITLE:Engineer",
		"END:VCARD",
		"",
	}, "\r\n")
	assert.Equal(t, want, p.String())
	assert.Equal(t, []byte(want), p.Bytes())
	assert.Equal(t, len(want), p.Len())
}

func TestBuild_EmptyEmailKeepsField(t *testing.T) {
	r := jane()
	r.Email = ""

	lines := strings.Split(Build(r).String(), "\r\n")

	assert.Contains(t, lines, "EMAIL:")
}

func TestBuild_Deterministic(t *testing.T) {
	assert.Equal(t, Build(jane()), Build(jane()))
}

func TestBuild_EscapesStructuralCharacters(t *testing.T) {
	r := jane()
	r.Company = "Acme, Inc; R&D"
	r.Title = "Lead\nEngineer"
	r.Surname = `Doe\Smith`

	out := Build(r).String()

	assert.Contains(t, out, `ORG:Acme\, Inc\; R&D`+"\r\n")
	assert.Contains(t, out, `TITLE:Lead\nEngineer`+"\r\n")
	assert.Contains(t, out, `N:Doe\\Smith;Jane`+"\r\n")
	// Injected line breaks never produce extra lines.
	require.Len(t, strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n"), 10)
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"", ""},
		{"a,b", `a\,b`},
		{"a;b", `a\;b`},
		{`a\b`, `a\\b`},
		{"a\r\nb", `a\nb`},
		{"a\rb", `a\nb`},
		{"Zoë", "Zoë"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.in), "Escape(%q)", tt.in)
	}
}
