// Package vcard builds vCard 3.0 contact payloads from directory records.
package vcard

import (
	"strings"

	"github.com/smileynet/qrcard/internal/directory"
)

// Version is the vCard version every payload declares.
const Version = "3.0"

const crlf = "\r\n"

// Payload is the encoded text of one contact card.
type Payload struct {
	text string
}

// Bytes returns the payload as raw bytes for the barcode encoder.
func (p Payload) Bytes() []byte { return []byte(p.text) }

// String returns the payload text.
func (p Payload) String() string { return p.text }

// Len returns the payload length in bytes.
func (p Payload) Len() int { return len(p.text) }

// Build assembles the contact card for r. Line order and property names are
// fixed; empty fields are still emitted with an empty value.
func Build(r directory.Record) Payload {
	var b strings.Builder
	line := func(name string, values ...string) {
		b.WriteString(name)
		b.WriteByte(':')
		for i, v := range values {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(Escape(v))
		}
		b.WriteString(crlf)
	}

	b.WriteString("BEGIN:VCARD" + crlf)
	b.WriteString("VERSION:" + Version + crlf)
	line("N", r.Surname, r.GivenName)
	line("FN", r.DisplayName)
	line("ORG", r.Company)
	line("EMAIL", r.Email)
	line("TEL;TYPE=WORK,VOICE", r.WorkPhone)
	line("TEL;TYPE=CELL", r.MobilePhone)
	line("TITLE", r.Title)
	b.WriteString("END:VCARD" + crlf)

	return Payload{text: b.String()}
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`,`, `\,`,
	`;`, `\;`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
)

// Escape applies vCard text-value escaping so a field value cannot break
// the line structure or split into extra components.
func Escape(v string) string {
	return escaper.Replace(v)
}
