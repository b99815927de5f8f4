package dynamics

import (
	"fmt"
	"net/url"
	"strings"
)

// Resource is a metadata collection exposed under <system url>/metadata.
type Resource int

const (
	PublicEntities Resource = iota
	PublicEnumerations
)

func (r Resource) String() string {
	switch r {
	case PublicEntities:
		return "PublicEntities"
	case PublicEnumerations:
		return "PublicEnumerations"
	default:
		return fmt.Sprintf("Resource(%d)", int(r))
	}
}

// Path is the resource path relative to the system url.
func (r Resource) Path() string {
	return "metadata/" + r.String()
}

// secondField is the property matched alongside Name.
func (r Resource) secondField() string {
	if r == PublicEnumerations {
		return "LabelId"
	}
	return "EntitySetName"
}

func (r Resource) noun() string {
	if r == PublicEnumerations {
		return "enum"
	}
	return "entity"
}

// MatchKind selects how Term is matched against the metadata.
type MatchKind int

const (
	MatchAll MatchKind = iota
	MatchExactName
	MatchContains
)

// MetadataQuery describes one search. Build it with NewMetadataQuery.
type MetadataQuery struct {
	Resource   Resource
	Match      MatchKind
	Term       string
	ODataQuery string
}

// NewMetadataQuery validates that at most one of name and contains is set.
func NewMetadataQuery(resource Resource, name, contains, odataQuery string) (MetadataQuery, error) {
	q := MetadataQuery{Resource: resource, ODataQuery: odataQuery}
	switch {
	case name != "" && contains != "":
		return q, &QueryError{
			Kind:     ErrConfiguration,
			Resource: resource,
			Term:     name,
			Err:      fmt.Errorf("name %q and contains %q are mutually exclusive", name, contains),
		}
	case name != "":
		q.Match, q.Term = MatchExactName, name
	case contains != "":
		q.Match, q.Term = MatchContains, contains
	}
	return q, nil
}

// SearchTerm is the term reported in diagnostics.
func (q MetadataQuery) SearchTerm() string {
	if q.Match == MatchAll {
		return "*"
	}
	return q.Term
}

// Filter returns the unescaped $filter expression, or "" when every element is requested.
func (q MetadataQuery) Filter() string {
	second := q.Resource.secondField()
	term := strings.ReplaceAll(q.Term, "'", "''")
	switch q.Match {
	case MatchExactName:
		return fmt.Sprintf("(tolower(Name) eq tolower('%[1]s') or tolower(%[2]s) eq tolower('%[1]s'))", term, second)
	case MatchContains:
		return fmt.Sprintf("(contains(tolower(Name), tolower('%[1]s')) or contains(tolower(%[2]s), tolower('%[1]s')))", term, second)
	default:
		return ""
	}
}

// RawQuery is the query component sent to the server.
func (q MetadataQuery) RawQuery() string {
	var query string
	if f := q.Filter(); f != "" {
		query = "$filter=" + url.QueryEscape(f)
	}
	if q.ODataQuery != "" {
		suffix := strings.TrimPrefix(q.ODataQuery, "&")
		if query != "" {
			query += "&"
		}
		query += escapeQueryText(suffix)
		query = strings.ReplaceAll(query, "?", "")
		query = strings.TrimPrefix(query, "&")
	}
	return query
}

// escapeQueryText percent-encodes the bytes that are not allowed in a query component.
// OData punctuation and existing %XX escapes are left as they are.
func escapeQueryText(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(c)
		case isQueryByte(c):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isQueryByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~$&=,()'*:@/;!+?", c) >= 0
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// BuildURL produces the absolute request url for q against the environment in conn.
func BuildURL(conn ConnectionContext, q MetadataQuery) (string, error) {
	conn = conn.Normalize()
	if conn.SystemURL == "" {
		return "", &QueryError{
			Kind:     ErrConfiguration,
			Resource: q.Resource,
			Term:     q.SearchTerm(),
			Err:      fmt.Errorf("no url or system url configured"),
		}
	}

	u, err := url.Parse(conn.SystemURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("%q is not an absolute url", conn.SystemURL)
		}
		return "", &QueryError{Kind: ErrConfiguration, Resource: q.Resource, Term: q.SearchTerm(), Err: err}
	}

	endpoint := conn.SystemURL
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	endpoint += q.Resource.Path()

	if raw := q.RawQuery(); raw != "" {
		endpoint += "?" + raw
	}
	return endpoint, nil
}
