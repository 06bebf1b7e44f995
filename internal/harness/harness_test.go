package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/memberships.yaml")
	require.NoError(t, err)

	assert.Equal(t, "memberships", s.Name)
	assert.Equal(t, filepath.Join("testdata", "schema"), s.Schema)
	require.Len(t, s.Fixtures, 3)
	assert.Equal(t, "OrganisationMembership", s.Fixtures[2].Type)
	assert.Len(t, s.Fixtures[2].Records, 4)

	require.Len(t, s.Steps, 6)
	assert.Equal(t, ActionQuery, s.Steps[0].Action())
	assert.Equal(t, []string{"users"}, s.Steps[0].Query.Join)
	assert.Equal(t, 1, *s.Steps[0].Expect.Count)
	assert.Equal(t, ActionUpdate, s.Steps[2].Action())
	assert.Equal(t, map[string]any{"name": "Pear"}, s.Steps[2].Update.Set)
	assert.Equal(t, ActionRemove, s.Steps[3].Action())
	assert.True(t, s.Steps[4].Query.Count)
	assert.Equal(t, "NOT_A_REFERENCE", s.Steps[5].Expect.Error)

	require.Len(t, s.Assertions, 5)
	assert.Equal(t, []any{"peter", "marcel"}, s.Assertions[1].Values)
	assert.True(t, s.Assertions[4].Absent)
}

func TestLoadScenario_AbsoluteSchema(t *testing.T) {
	path := writeScenario(t, `
name: abs
description: absolute schema path
schema: /srv/schema
steps:
  - name: all
    query: {type: User}
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/schema", s.Schema)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, query: {type: User}}]\nasertions: []\n",
			wantErr: "field asertions not found",
		},
		{
			name:    "missing name",
			content: "description: y\nschema: s\nsteps: [{name: a, query: {type: User}}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\nschema: s\nsteps: [{name: a, query: {type: User}}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing schema",
			content: "name: x\ndescription: y\nsteps: [{name: a, query: {type: User}}]\n",
			wantErr: "schema is required",
		},
		{
			name:    "no steps",
			content: "name: x\ndescription: y\nschema: s\nsteps: []\n",
			wantErr: "steps list is required",
		},
		{
			name:    "fixture without type",
			content: "name: x\ndescription: y\nschema: s\nfixtures: [{records: []}]\nsteps: [{name: a, query: {type: User}}]\n",
			wantErr: "fixtures[0]: type is required",
		},
		{
			name:    "unnamed step",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{query: {type: User}}]\n",
			wantErr: "steps[0]: name is required",
		},
		{
			name:    "duplicate step",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, query: {type: User}}, {name: a, query: {type: User}}]\n",
			wantErr: `duplicate step name "a"`,
		},
		{
			name:    "two actions",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, query: {type: User}, remove: {type: User}}]\n",
			wantErr: "exactly one of query, update or remove",
		},
		{
			name:    "no action",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a}]\n",
			wantErr: "exactly one of query, update or remove",
		},
		{
			name:    "query without type",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, query: {limit: 1}}]\n",
			wantErr: "query type is required",
		},
		{
			name:    "update without set",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, update: {type: User, where: {name: a}}}]\n",
			wantErr: "update set is required",
		},
		{
			name:    "assertion on unknown step",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, query: {type: User}}]\nassertions: [{type: result_count, step: b}]\n",
			wantErr: `unknown step "b"`,
		},
		{
			name:    "final state without entity",
			content: "name: x\ndescription: y\nschema: s\nsteps: [{name: a, query: {type: User}}]\nassertions: [{type: final_state}]\n",
			wantErr: "final_state requires entity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "failing.yaml"),
		filepath.Join("testdata", "scenarios", "memberships.yaml"),
		filepath.Join("testdata", "scenarios", "nested", "empty_steps.yml"),
	}, files)

	files, err = FindScenarios("testdata/scenarios", "mem*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("testdata", "scenarios", "memberships.yaml")}, files)

	_, err = FindScenarios("testdata/scenarios", "[")
	assert.ErrorContains(t, err, "invalid filter pattern")

	_, err = FindScenarios("testdata/nope", "")
	assert.Error(t, err)
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "checkout.golden"), GoldenPath(filepath.Join("scenarios", "checkout.yaml")))
}

func TestRun_Memberships(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/memberships.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Steps, 6)

	sr, ok := result.Step("microsoft_member_count")
	require.True(t, ok)
	assert.Equal(t, 2, sr.Count)
	assert.Empty(t, sr.Items)
}

func TestRun_Failures(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/failing.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)

	assert.Equal(t, `step "users": expected 3 result(s), got 2`, result.Errors[0])
	assert.Contains(t, result.Errors[1], `step "unknown_type": UNKNOWN_TYPE`)
	assert.Contains(t, result.Errors[2], `step "missing_user"`)
	assert.Equal(t, `step "no_error": expected error containing "NOT_A_REFERENCE", got none`, result.Errors[3])
	assert.Contains(t, result.Errors[4], "Assertion failed: result_order")
	assert.Contains(t, result.Errors[4], "marc (pos 2) should be before admin (pos 1)")
	assert.Contains(t, result.Errors[5], "Assertion failed: result_contains")
	assert.Contains(t, result.Errors[5], "Results:\n  [1] id=00000000-0000-4000-8000-000000000001 name=admin")
	assert.Contains(t, result.Errors[6], "Assertion failed: final_state")
	assert.Contains(t, result.Errors[6], "1 record(s) matched")

	sr, ok := result.Step("unknown_type")
	require.True(t, ok)
	assert.Contains(t, sr.Error, "UNKNOWN_TYPE")
	assert.Zero(t, sr.Count)
}

func TestRun_SetupErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Run(ctx, &Scenario{Name: "x", Schema: "testdata/nope", Steps: []Step{{Name: "a"}}})
	assert.ErrorContains(t, err, "failed to load schema")

	_, err = Run(ctx, &Scenario{
		Name:     "x",
		Schema:   "testdata/schema",
		Fixtures: []Fixture{{Type: "Group", Records: []map[string]any{{"name": "a"}}}},
	})
	assert.ErrorContains(t, err, "fixtures[0]")

	_, err = Run(ctx, &Scenario{
		Name:     "x",
		Schema:   "testdata/schema",
		Fixtures: []Fixture{{Type: "Organisation", Records: []map[string]any{{"name": "a", "owner": map[string]any{"name": "admin"}}}}},
	})
	assert.ErrorContains(t, err, "fixtures[0].records[0]")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.AddStep(StepResult{
		Name:  "users",
		Count: 3,
		Items: []map[string]any{
			{"name": "marc", "age": int64(31)},
			{"name": "peter", "age": 40.0},
			{"name": "marcel", "tags": []any{"a", "b"}},
		},
	})

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"count", Assertion{Type: AssertResultCount, Step: "users", Count: 3}, ""},
		{"count mismatch", Assertion{Type: AssertResultCount, Step: "users", Count: 2}, "3 result(s)"},
		{"contains with number coercion", Assertion{Type: AssertResultContains, Step: "users", Where: map[string]any{"age": 31}}, ""},
		{"contains float", Assertion{Type: AssertResultContains, Step: "users", Where: map[string]any{"name": "peter", "age": 40}}, ""},
		{"contains nested", Assertion{Type: AssertResultContains, Step: "users", Where: map[string]any{"tags": []any{"a", "b"}}}, ""},
		{"contains missing", Assertion{Type: AssertResultContains, Step: "users", Where: map[string]any{"name": "admin"}}, "not found in results"},
		{"order", Assertion{Type: AssertResultOrder, Step: "users", Field: "name", Values: []any{"marc", "marcel"}}, ""},
		{"order wrong", Assertion{Type: AssertResultOrder, Step: "users", Field: "name", Values: []any{"marcel", "peter"}}, "marcel (pos 3) should be before peter (pos 2)"},
		{"order missing value", Assertion{Type: AssertResultOrder, Step: "users", Field: "name", Values: []any{"admin"}}, "missing name=admin"},
		{"order without field", Assertion{Type: AssertResultOrder, Step: "users"}, "requires field"},
		{"unknown step", Assertion{Type: AssertResultCount, Step: "orgs"}, `no result for step "orgs"`},
		{"unknown type", Assertion{Type: "trace_count", Step: "users"}, `unknown assertion type "trace_count"`},
		{"final state without session", Assertion{Type: AssertFinalState, Entity: "User"}, "requires database context"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(result, []Assertion{tt.assertion}, nil)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestResult(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddStep(StepResult{Name: "a", Count: 1})
	sr, ok := r.Step("a")
	require.True(t, ok)
	sr.Count = 5
	assert.Equal(t, 5, r.Steps[0].Count)

	_, ok = r.Step("b")
	assert.False(t, ok)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestSnapshot(t *testing.T) {
	r := NewResult()
	r.AddStep(StepResult{Name: "count", Action: ActionQuery, Type: "User", Count: 2})

	data, err := Snapshot("s", r)
	require.NoError(t, err)
	assert.Equal(t, `{
  "scenario": "s",
  "steps": [
    {
      "name": "count",
      "action": "query",
      "type": "User",
      "count": 2
    }
  ]
}
`, string(data))
}
