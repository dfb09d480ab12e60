package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// DefaultFilter selects user objects in Active Directory.
const DefaultFilter = "(&(objectCategory=person)(objectClass=user))"

// Attribute names requested for every entry.
const (
	attrDisplayName = "displayName"
	attrGivenName   = "givenName"
	attrSurname     = "sn"
	attrCompany     = "company"
	attrMail        = "mail"
	attrWorkPhone   = "telephoneNumber"
	attrMobile      = "mobile"
	attrTitle       = "title"
)

// LDAPConfig holds connection settings for an LDAP directory.
type LDAPConfig struct {
	URL                string
	BindDN             string
	BindPassword       string
	BaseDN             string
	IDAttribute        string // Defaults to sAMAccountName.
	PageSize           uint32
	StartTLS           bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// LDAPSource queries an LDAP server. Each Search opens one connection and
// issues one paged search that returns every attribute a Record needs.
type LDAPSource struct {
	cfg LDAPConfig
}

// NewLDAPSource creates an LDAPSource, filling in defaults.
func NewLDAPSource(cfg LDAPConfig) *LDAPSource {
	if cfg.IDAttribute == "" {
		cfg.IDAttribute = "sAMAccountName"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &LDAPSource{cfg: cfg}
}

// ValidateFilter reports whether filter is a syntactically valid LDAP filter.
func ValidateFilter(filter string) error {
	if _, err := ldap.CompileFilter(filter); err != nil {
		return fmt.Errorf("directory: invalid filter %q: %w", filter, err)
	}
	return nil
}

// Search returns all entries under the base DN matching filter.
// An empty filter means DefaultFilter.
func (s *LDAPSource) Search(ctx context.Context, filter string) ([]Record, error) {
	if filter == "" {
		filter = DefaultFilter
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	attrs := s.attributes()
	req := ldap.NewSearchRequest(
		s.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attrs,
		nil,
	)
	res, err := conn.SearchWithPaging(req, s.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: searching %s: %v", ErrSource, s.cfg.BaseDN, err)
	}

	records := make([]Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		records = append(records, recordFromEntry(e, s.cfg.IDAttribute))
	}
	return records, nil
}

func (s *LDAPSource) connect() (*ldap.Conn, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify} //nolint:gosec // opt-in for lab directories
	conn, err := ldap.DialURL(s.cfg.URL,
		ldap.DialWithDialer(&net.Dialer{Timeout: s.cfg.Timeout}),
		ldap.DialWithTLSConfig(tlsCfg),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrSource, s.cfg.URL, err)
	}
	conn.SetTimeout(s.cfg.Timeout)

	if s.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: starttls: %v", ErrSource, err)
		}
	}

	if s.cfg.BindDN != "" {
		if err := conn.Bind(s.cfg.BindDN, s.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: binding as %s: %v", ErrSource, s.cfg.BindDN, err)
		}
	}
	return conn, nil
}

func (s *LDAPSource) attributes() []string {
	return []string{
		s.cfg.IDAttribute,
		attrDisplayName,
		attrGivenName,
		attrSurname,
		attrCompany,
		attrMail,
		attrWorkPhone,
		attrMobile,
		attrTitle,
	}
}

// recordFromEntry maps an LDAP entry to a Record. Absent attributes become
// empty strings.
func recordFromEntry(e *ldap.Entry, idAttr string) Record {
	return Record{
		ID:          e.GetAttributeValue(idAttr),
		DN:          e.DN,
		DisplayName: e.GetAttributeValue(attrDisplayName),
		GivenName:   e.GetAttributeValue(attrGivenName),
		Surname:     e.GetAttributeValue(attrSurname),
		Company:     e.GetAttributeValue(attrCompany),
		Email:       e.GetAttributeValue(attrMail),
		WorkPhone:   e.GetAttributeValue(attrWorkPhone),
		MobilePhone: e.GetAttributeValue(attrMobile),
		Title:       e.GetAttributeValue(attrTitle),
	}
}
