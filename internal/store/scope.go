package store

import (
	"strings"

	"github.com/goccy/go-json"
)

// Scope is an extra predicate ANDed to identity queries and stale sweeps,
// e.g. "members of this video". The zero Scope matches everything.
type Scope struct {
	clause string
	args   []any
}

// All is the unrestricted scope.
var All = Scope{}

// Where builds a scope from a SQL boolean expression over the kind's table.
func Where(clause string, args ...any) Scope {
	return Scope{clause: clause, args: args}
}

// InVideo restricts clips and members to one parent video.
func InVideo(hashKey string) Scope {
	return Where("video_key = ?", hashKey)
}

// ServerVideos excludes videos that only exist locally.
func ServerVideos() Scope {
	return Where("hash_key NOT LIKE ?", LocalKeyPrefix+"%")
}

// And combines two scopes.
func (s Scope) And(o Scope) Scope {
	switch {
	case s.clause == "":
		return o
	case o.clause == "":
		return s
	}
	args := append(append([]any{}, s.args...), o.args...)
	return Scope{clause: "(" + s.clause + ") AND (" + o.clause + ")", args: args}
}

// IsAll reports whether the scope is unrestricted.
func (s Scope) IsAll() bool {
	return s.clause == ""
}

// apply appends the scope to a query that already has a WHERE clause.
func (s Scope) apply(q string, args []any) (string, []any) {
	if s.clause == "" {
		return q, args
	}
	var b strings.Builder
	b.WriteString(q)
	b.WriteString(" AND (")
	b.WriteString(s.clause)
	b.WriteString(")")
	return b.String(), append(args, s.args...)
}

// idList encodes ids for a json_each() table-valued parameter, which keeps
// IN queries to a single bound argument regardless of batch size.
func idList(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
