package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constraintkit/internal/logging"
)

const testRules = `
gen_enforced_dependency(Cwd, 'lodash', '^4.17.21', 'dependencies') :-
  workspace_has_dependency(Cwd, 'lodash', _, 'dependencies').
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testProject(t *testing.T, rules string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "package.json"), `{"name": "monorepo", "workspaces": ["packages/*"]}`)
	writeFile(t, filepath.Join(root, "packages", "a", "package.json"),
		`{"name": "@acme/a", "version": "1.0.0", "dependencies": {"lodash": "^4.17.21"}}`)
	writeFile(t, filepath.Join(root, "packages", "b", "package.json"),
		`{"name": "@acme/b", "version": "0.1.0", "dependencies": {"lodash": "^4.0.0"}}`)
	if rules != "" {
		writeFile(t, filepath.Join(root, "constraints.mg"), rules)
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFactsCmd(t *testing.T) {
	root := testProject(t, "")
	out, err := execute(t, "facts", "--cwd", root)
	require.NoError(t, err)

	assert.Contains(t, out, "workspace('packages/a').\n")
	assert.Contains(t, out, "workspace_ident('.', 'monorepo').\n")
	assert.Contains(t, out, "workspace_version('.', []).\n")
	assert.Contains(t, out, "Decl workspace(WorkspaceCwd).\n")
}

func TestCheckCmdReportsViolations(t *testing.T) {
	root := testProject(t, testRules)
	out, err := execute(t, "check", "--cwd", root)
	assert.ErrorIs(t, err, errUnsatisfied)

	assert.Contains(t, out, "Enforced dependencies (2):")
	assert.Contains(t, out, "Violations (1):")
	assert.Contains(t, out, "[mismatched_range] @acme/b must depend on lodash@^4.17.21 in dependencies (found ^4.0.0)")
}

func TestCheckCmdSatisfied(t *testing.T) {
	root := testProject(t, "")
	out, err := execute(t, "check", "--cwd", root)
	require.NoError(t, err)
	assert.Contains(t, out, "All constraints satisfied.")
}

func TestCheckCmdJSON(t *testing.T) {
	root := testProject(t, testRules)
	out, err := execute(t, "check", "--json", "--cwd", root)
	assert.ErrorIs(t, err, errUnsatisfied)

	var report checkReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Dependencies, 2)
	assert.Equal(t, "packages/a", report.Dependencies[0].Workspace)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "mismatched_range", report.Violations[0].Kind)
	assert.Equal(t, "packages/b", report.Violations[0].Workspace)
	assert.Empty(t, report.Fields)
}

func TestCheckCmdRuleError(t *testing.T) {
	root := testProject(t, "p(X) :- undefined_thing(X).")
	_, err := execute(t, "check", "--cwd", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined_thing/1")
}

func TestQueryCmd(t *testing.T) {
	root := testProject(t, "")
	out, err := execute(t, "query", "--cwd", root, "--context", "Ident=@acme/b", "workspace_ident(Cwd, Ident)")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t, `{"Cwd": "packages/b", "Ident": "@acme/b"}`, lines[0])
}

func TestQueryCmdNullBinding(t *testing.T) {
	root := testProject(t, "")
	out, err := execute(t, "query", "--cwd", root, "workspace_version('.', Version)")
	require.NoError(t, err)
	assert.JSONEq(t, `{"Version": null}`, strings.TrimSpace(out))
}

func TestInvalidConfigIsRecordedInBootLog(t *testing.T) {
	root := testProject(t, "")
	writeFile(t, filepath.Join(root, ".constraints", "config.yaml"), `
constraints:
  fact_limit: -1
logging:
  debug_mode: true
  level: debug
`)
	t.Cleanup(logging.CloseAll)

	_, err := execute(t, "facts", "--cwd", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fact_limit must not be negative")
	logging.CloseAll()

	logsDir := filepath.Join(root, ".constraints", "logs")
	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)
	var bootLog string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_boot.log") {
			data, err := os.ReadFile(filepath.Join(logsDir, e.Name()))
			require.NoError(t, err)
			bootLog = string(data)
		}
	}
	assert.Contains(t, bootLog, "config rejected")
}

func TestParseContextFlags(t *testing.T) {
	got, err := parseContextFlags([]string{"A=x", "B=a=b", "C="})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a=b", got[1].Value)
	assert.Equal(t, "", got[2].Value)

	_, err = parseContextFlags([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseContextFlags([]string{"=x"})
	assert.Error(t, err)
}
