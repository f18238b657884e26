// Package routes maps inbound gateway paths onto backing tables.
package routes

import (
	"fmt"
	"net/http"
	"strings"
)

// Prefix is the path prefix shared by every data route.
const Prefix = "/api/"

// Route binds one resource name to a backing table.
type Route struct {
	// Resource is the first path segment after Prefix (e.g. "leave-requests").
	Resource string

	// Table is the backing table name; it may contain spaces.
	Table string

	// Methods lists the enabled HTTP methods.
	Methods []string

	// Paginated marks list GETs that follow the backing cursor to completion.
	Paginated bool
}

// Allows reports whether method is enabled on the route.
func (r Route) Allows(method string) bool {
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Allow renders the Allow header value.
func (r Route) Allow() string {
	return strings.Join(append(append([]string{}, r.Methods...), http.MethodOptions), ", ")
}

// Match is a resolved route plus the optional record id that followed it.
type Match struct {
	Route    Route
	RecordID string
}

// IsList reports whether the match addresses the whole table.
func (m Match) IsList() bool {
	return m.RecordID == ""
}

// Table is an ordered route table. The first matching route wins.
type Table struct {
	routes []Route
}

var (
	readWrite       = []string{http.MethodGet, http.MethodPost, http.MethodPatch}
	readWriteDelete = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}
)

// Default returns the built-in route table in priority order.
func Default() *Table {
	return &Table{routes: []Route{
		{Resource: "employees", Table: "Employees", Methods: readWriteDelete, Paginated: true},
		{Resource: "attendance", Table: "Attendance", Methods: readWrite, Paginated: true},
		{Resource: "leave-requests", Table: "Leave Requests", Methods: readWrite, Paginated: true},
		{Resource: "announcements", Table: "Announcements", Methods: readWriteDelete},
		{Resource: "payroll", Table: "Payroll", Methods: readWrite, Paginated: true},
		{Resource: "medical-claims", Table: "Medical Claims", Methods: readWrite, Paginated: true},
		{Resource: "emergency-contacts", Table: "Emergency Contacts", Methods: readWriteDelete},
	}}
}

// New builds a table from routes, keeping their order.
func New(routes ...Route) *Table {
	return &Table{routes: append([]Route(nil), routes...)}
}

// Routes returns a copy of the routes in priority order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// WithTables returns a copy of t with backing table names replaced.
// Every key of overrides must name an existing resource.
func (t *Table) WithTables(overrides map[string]string) (*Table, error) {
	out := t.Routes()
	for resource, table := range overrides {
		found := false
		for i := range out {
			if out[i].Resource == resource {
				out[i].Table = table
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown resource %q in table overrides", resource)
		}
	}
	return &Table{routes: out}, nil
}

// Lookup resolves path against the table. Matching is by segment-bounded prefix:
// "/api/employees" and "/api/employees/rec1" match, "/api/employeesx" does not.
func (t *Table) Lookup(path string) (Match, bool) {
	for _, route := range t.routes {
		prefix := Prefix + route.Resource
		if !strings.HasPrefix(path, prefix) {
			continue
		}

		rest := path[len(prefix):]
		if rest != "" && rest[0] != '/' {
			continue
		}

		return Match{Route: route, RecordID: recordID(rest)}, true
	}
	return Match{}, false
}

// recordID extracts the segment following the resource. Empty segments, as in
// "/api/employees/", address the list.
func recordID(rest string) string {
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
