package sqlgate

import "testing"

func TestAnalyzeQueryClassifiesStatements(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want []ChangeSetItem
	}{
		{"insert", "INSERT INTO widgets (id) VALUES (1)", []ChangeSetItem{{Tag: TagRecords, Name: "widgets"}}},
		{"update", "UPDATE widgets SET id = 2", []ChangeSetItem{{Tag: TagRecords, Name: "widgets"}}},
		{"delete", "DELETE FROM widgets", []ChangeSetItem{{Tag: TagRecords, Name: "widgets"}}},
		{"create table", "CREATE TABLE widgets (id int)", []ChangeSetItem{{Tag: TagTables, Name: ""}}},
		{"drop table", "DROP TABLE widgets", []ChangeSetItem{{Tag: TagTables, Name: ""}}},
		{"create index", "CREATE INDEX idx_widgets ON widgets (id)", []ChangeSetItem{{Tag: TagIndex, Name: ""}}},
		{"select ignored", "SELECT * FROM widgets", nil},
		{"malformed yields empty", "NOT VALID SQL {{{", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AnalyzeQuery(tc.sql)
			if len(got) != len(tc.want) {
				t.Fatalf("AnalyzeQuery(%q) = %v, want %v", tc.sql, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("AnalyzeQuery(%q)[%d] = %v, want %v", tc.sql, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestAnalyzeQueryDeduplicatesByTagAndName(t *testing.T) {
	got := AnalyzeQuery("INSERT INTO widgets (id) VALUES (1); UPDATE widgets SET id = 2")
	if len(got) != 1 {
		t.Fatalf("expected a single deduplicated item, got %v", got)
	}
}

func TestCheckAuthSchemaOperationsRejectsQualifiedWrites(t *testing.T) {
	cases := []struct {
		name    string
		sql     string
		wantErr bool
	}{
		{"delete auth qualified", "DELETE FROM auth.accounts", true},
		{"delete public unqualified", "DELETE FROM accounts", false},
		{"truncate auth qualified", "TRUNCATE auth.accounts", true},
		{"select auth qualified is fine", "SELECT * FROM auth.accounts", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckAuthSchemaOperations(tc.sql)
			if tc.wantErr && err == nil {
				t.Fatalf("expected rejection for %q", tc.sql)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection for %q: %v", tc.sql, err)
			}
		})
	}
}

func TestSplitRespectsStringLiterals(t *testing.T) {
	stmts, err := Split("SELECT 'a;b'; SELECT 1")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("Split returned %d statements, want 2", len(stmts))
	}
}
