// Package sqlgate implements C8: an AST-level classifier over arbitrary SQL
// submitted through the admin SQL console, built on pganalyze/pg_query_go's
// embedded libpg_query parser. Grounded on the teacher's validator idiom
// (internal/httpserver/validate.go: never panic on malformed input, return a
// typed result) generalized from struct-tag validation to SQL-statement
// classification.
package sqlgate

import (
	"fmt"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v5"

	"github.com/insforge/core/internal/apperror"
	"github.com/insforge/core/internal/telemetry"
)

// ChangeSetItem is a transient descriptor of one schema/data effect a
// statement may have, used by callers to invalidate dependent caches.
type ChangeSetItem struct {
	Tag  string `json:"tag"`
	Name string `json:"name"`
}

// Change-set tags, per spec.md §4.8.
const (
	TagTables    = "tables"
	TagTable     = "table"
	TagRecords   = "records"
	TagIndex     = "index"
	TagTrigger   = "trigger"
	TagPolicy    = "policy"
	TagFunction  = "function"
	TagExtension = "extension"
)

const authSchema = "auth"

// AnalyzeQuery parses sql and returns a deduplicated, first-seen-ordered list
// of change-set items. A parse failure yields an empty list rather than an
// error — the caller has no recovery path for malformed SQL beyond rejecting
// the write that produced it, which happens upstream of this call.
func AnalyzeQuery(sql string) []ChangeSetItem {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil
	}

	var items []ChangeSetItem
	seen := make(map[ChangeSetItem]bool)
	add := func(tag, name string) {
		item := ChangeSetItem{Tag: tag, Name: name}
		if seen[item] {
			return
		}
		seen[item] = true
		items = append(items, item)
	}

	for _, raw := range result.Stmts {
		classifyStatement(raw.Stmt, add)
	}
	return items
}

func classifyStatement(node *pgquery.Node, add func(tag, name string)) {
	switch {
	case node.GetInsertStmt() != nil:
		add(TagRecords, relationName(node.GetInsertStmt().GetRelation()))
	case node.GetUpdateStmt() != nil:
		add(TagRecords, relationName(node.GetUpdateStmt().GetRelation()))
	case node.GetDeleteStmt() != nil:
		add(TagRecords, relationName(node.GetDeleteStmt().GetRelation()))

	case node.GetCreateStmt() != nil:
		add(TagTables, "")
	case node.GetDropStmt() != nil:
		classifyDropStmt(node.GetDropStmt(), add)

	case node.GetAlterTableStmt() != nil:
		add(TagTable, relationName(node.GetAlterTableStmt().GetRelation()))
	case node.GetRenameStmt() != nil:
		classifyRenameStmt(node.GetRenameStmt(), add)

	case node.GetIndexStmt() != nil:
		add(TagIndex, "")

	case node.GetCreateTrigStmt() != nil:
		add(TagTrigger, "")

	case node.GetCreatePolicyStmt() != nil:
		add(TagPolicy, "")
	case node.GetAlterPolicyStmt() != nil:
		add(TagPolicy, "")

	case node.GetCreateFunctionStmt() != nil:
		add(TagFunction, "")

	case node.GetCreateExtensionStmt() != nil:
		add(TagExtension, "")

	case node.GetSelectStmt() != nil:
		// SELECT (and CTEs terminating in SELECT) carry no change-set effect.
	}
}

func classifyDropStmt(stmt *pgquery.DropStmt, add func(tag, name string)) {
	switch stmt.GetRemoveType() {
	case pgquery.ObjectType_OBJECT_TABLE:
		add(TagTables, "")
	case pgquery.ObjectType_OBJECT_INDEX:
		add(TagIndex, "")
	case pgquery.ObjectType_OBJECT_TRIGGER:
		add(TagTrigger, "")
	case pgquery.ObjectType_OBJECT_POLICY:
		add(TagPolicy, "")
	case pgquery.ObjectType_OBJECT_FUNCTION:
		add(TagFunction, "")
	case pgquery.ObjectType_OBJECT_EXTENSION:
		add(TagExtension, "")
	}
}

func classifyRenameStmt(stmt *pgquery.RenameStmt, add func(tag, name string)) {
	switch stmt.GetRenameType() {
	case pgquery.ObjectType_OBJECT_TABLE, pgquery.ObjectType_OBJECT_COLUMN:
		add(TagTable, relationName(stmt.GetRelation()))
	case pgquery.ObjectType_OBJECT_TRIGGER:
		add(TagTrigger, "")
	case pgquery.ObjectType_OBJECT_POLICY:
		add(TagPolicy, "")
	case pgquery.ObjectType_OBJECT_FUNCTION:
		add(TagFunction, "")
	}
}

func relationName(rel *pgquery.RangeVar) string {
	if rel == nil {
		return ""
	}
	return rel.GetRelname()
}

// CheckAuthSchemaOperations rejects DELETE, TRUNCATE, or DROP statements
// whose target relation is explicitly schema-qualified to `auth`. Unqualified
// names default to the public schema and are permitted.
func CheckAuthSchemaOperations(sql string) error {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return apperror.Invalid(fmt.Sprintf("could not parse SQL: %v", err))
	}

	for _, raw := range result.Stmts {
		node := raw.Stmt

		if del := node.GetDeleteStmt(); del != nil {
			if err := rejectAuthSchema(del.GetRelation(), "DELETE"); err != nil {
				return err
			}
			continue
		}

		if trunc := node.GetTruncateStmt(); trunc != nil {
			for _, rel := range trunc.GetRelations() {
				if err := rejectAuthSchema(rel.GetRangeVar(), "TRUNCATE"); err != nil {
					return err
				}
			}
			continue
		}

		if drop := node.GetDropStmt(); drop != nil {
			for _, obj := range drop.GetObjects() {
				schema, name := qualifiedNameParts(obj)
				if strings.EqualFold(schema, authSchema) {
					return apperror.Forbidden(fmt.Sprintf("DROP against auth.%s is not permitted", name))
				}
			}
		}
	}

	return nil
}

func rejectAuthSchema(rel *pgquery.RangeVar, verb string) error {
	if rel == nil {
		return nil
	}
	if strings.EqualFold(rel.GetSchemaname(), authSchema) {
		return apperror.Forbidden(fmt.Sprintf("%s against auth.%s is not permitted", verb, rel.GetRelname()))
	}
	return nil
}

// qualifiedNameParts extracts {schema, name} from a dotted-name list node
// (as produced for DROP TABLE/INDEX/TRIGGER/... targets). An unqualified
// single-part name yields an empty schema.
func qualifiedNameParts(node *pgquery.Node) (schema, name string) {
	list := node.GetList()
	if list == nil {
		if str := node.GetString_(); str != nil {
			return "", str.GetSval()
		}
		return "", ""
	}

	parts := make([]string, 0, len(list.GetItems()))
	for _, item := range list.GetItems() {
		if str := item.GetString_(); str != nil {
			parts = append(parts, str.GetSval())
		}
	}

	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	default:
		return parts[len(parts)-2], parts[len(parts)-1]
	}
}

// Split segments a semicolon-delimited SQL script into discrete statements,
// respecting string literals, escaped quotes, line comments, and block
// comments via libpg_query's own scanner.
func Split(script string) ([]string, error) {
	result, err := pgquery.SplitWithScanner(script)
	if err != nil {
		return nil, fmt.Errorf("splitting SQL script: %w", err)
	}
	return result, nil
}

// RecordRejection increments the rejection counter; called by the admin SQL
// console handler whenever CheckAuthSchemaOperations returns an error.
func RecordRejection() {
	telemetry.SQLGateRejectionsTotal.Inc()
}
