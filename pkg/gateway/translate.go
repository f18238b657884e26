package gateway

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/hr-gateway/pkg/client"
	"github.com/Sternrassler/hr-gateway/pkg/routes"
)

// ForwardedParams lists the inbound query parameters copied onto backing calls, in order.
var ForwardedParams = []string{"filterByFormula", "view", "pageSize", "maxRecords"}

// CursorParam is the query parameter carrying the continuation cursor.
const CursorParam = "offset"

// QueryParam is one name/value pair in backing-call order.
type QueryParam struct {
	Name  string
	Value string
}

// Forwarded is an inbound request translated for the backing source.
// It is built once per inbound call and not modified afterwards.
type Forwarded struct {
	Resource string
	Method   string

	// Path is already escaped: "/{base}/{table}[/{record}]".
	Path  string
	Query []QueryParam

	// Body is nil for GET and DELETE.
	Body []byte
}

// Translate maps one inbound call onto its backing request.
func Translate(baseID string, m routes.Match, method string, query url.Values, body []byte) Forwarded {
	path := "/" + url.PathEscape(baseID) + "/" + url.PathEscape(m.Route.Table)
	if m.RecordID != "" {
		path += "/" + url.PathEscape(m.RecordID)
	}

	var params []QueryParam
	for _, name := range ForwardedParams {
		if value := query.Get(name); value != "" {
			params = append(params, QueryParam{Name: name, Value: value})
		}
	}

	var forwardedBody []byte
	if (method == http.MethodPost || method == http.MethodPatch) && len(body) > 0 {
		forwardedBody = body
	}

	return Forwarded{
		Resource: m.Route.Resource,
		Method:   method,
		Path:     path,
		Query:    params,
		Body:     forwardedBody,
	}
}

// URL renders the backing URL under apiURL, appending extra parameters after
// the forwarded ones.
func (f Forwarded) URL(apiURL string, extra ...QueryParam) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(apiURL, "/"))
	b.WriteString(f.Path)

	sep := "?"
	for _, p := range append(append([]QueryParam(nil), f.Query...), extra...) {
		b.WriteString(sep)
		b.WriteString(encodeComponent(p.Name))
		b.WriteByte('=')
		b.WriteString(encodeComponent(p.Value))
		sep = "&"
	}
	return b.String()
}

// Call builds the client call for this request.
func (f Forwarded) Call(apiURL string, extra ...QueryParam) client.Call {
	return client.Call{
		Resource: f.Resource,
		Method:   f.Method,
		URL:      f.URL(apiURL, extra...),
		Body:     f.Body,
	}
}

// encodeComponent percent-encodes s for a query component, spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
