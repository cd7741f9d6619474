package broker

import (
	"strings"

	"github.com/routecast/routecast/internal/protocol"
)

// writeVerbs are SQL keywords that mutate state or reconfigure the
// database. The query operation refuses any statement containing one,
// before the statement ever reaches the analytical store. This is
// defense in depth on top of the operation split itself.
var writeVerbs = map[string]struct{}{
	"INSERT":  {},
	"UPDATE":  {},
	"DELETE":  {},
	"REPLACE": {},
	"DROP":    {},
	"ALTER":   {},
	"CREATE":  {},
	"ATTACH":  {},
	"DETACH":  {},
	"PRAGMA":  {},
	"VACUUM":  {},
	"REINDEX": {},
}

// rejectWriteVerbs validates that stmt is read-only. Matching is by
// whole token, so a column literally named "updated_at" passes while
// "UPDATE orders ..." does not.
func rejectWriteVerbs(stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return protocol.NewValidationError("query requires sql")
	}
	for _, tok := range strings.FieldsFunc(stmt, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ')' || r == ';' || r == ','
	}) {
		if _, bad := writeVerbs[strings.ToUpper(tok)]; bad {
			return protocol.NewValidationError("query must be read-only, found %q", strings.ToUpper(tok))
		}
	}
	return nil
}
