package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/docmap/internal/database"
	"github.com/roach88/docmap/internal/entity"
	"github.com/roach88/docmap/internal/mapping"
	"github.com/roach88/docmap/internal/query"
	"github.com/roach88/docmap/internal/schemaload"
	"github.com/roach88/docmap/internal/store"
)

// Harness executes the steps of one scenario against a session.
type Harness struct {
	session *database.Session
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database:
// 1. Load the CUE schema
// 2. Insert the fixtures through a session
// 3. Execute the steps, checking expect clauses
// 4. Evaluate the assertions
//
// A returned error means the scenario could not be set up. Step and
// assertion failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	loaded, errs := schemaload.LoadDir(scenario.Schema, schemaload.FailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema: %w", errs[0])
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := database.New(loaded.Registry, st, database.WithLogger(logger))
	h := &Harness{
		session: db.CreateSession(),
		logger:  logger,
	}

	if err := h.seed(ctx, scenario.Fixtures); err != nil {
		return nil, fmt.Errorf("failed to insert fixtures: %w", err)
	}

	result := NewResult()
	for _, step := range scenario.Steps {
		h.executeStep(ctx, step, result)
	}

	actx := &AssertionContext{Session: h.session, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// seed converts each fixture record to an instance and adds it to the
// session, in file order.
func (h *Harness) seed(ctx context.Context, fixtures []Fixture) error {
	db := h.session.Database()
	for i, f := range fixtures {
		s, err := db.Registry().Get(f.Type)
		if err != nil {
			return fmt.Errorf("fixtures[%d]: %w", i, err)
		}
		for j, record := range f.Records {
			e, err := db.Mapper().PlainToClass(s, record)
			if err != nil {
				return fmt.Errorf("fixtures[%d].records[%d]: %w", i, j, err)
			}
			if err := h.session.Add(ctx, e); err != nil {
				return fmt.Errorf("fixtures[%d].records[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// executeStep runs one step and records its result. Errors not named by
// the step's expect clause fail the scenario.
func (h *Harness) executeStep(ctx context.Context, step Step, result *Result) {
	sr := StepResult{Name: step.Name, Action: step.Action()}

	var err error
	switch {
	case step.Query != nil:
		sr.Type = step.Query.Type
		err = h.runQuery(ctx, step.Query, &sr)
	case step.Update != nil:
		sr.Type = step.Update.Type
		err = h.runUpdate(ctx, step.Update, &sr)
	case step.Remove != nil:
		sr.Type = step.Remove.Type
		err = h.runRemove(ctx, step.Remove, &sr)
	}
	if err != nil {
		sr.Error = err.Error()
	}
	result.AddStep(sr)

	h.logger.Info("step completed",
		"step", step.Name,
		"action", sr.Action,
		"type", sr.Type,
		"count", sr.Count,
		"error", sr.Error,
	)

	expect := step.Expect
	switch {
	case expect != nil && expect.Error != "":
		if err == nil {
			result.AddError(fmt.Sprintf("step %q: expected error containing %q, got none", step.Name, expect.Error))
		} else if !strings.Contains(err.Error(), expect.Error) {
			result.AddError(fmt.Sprintf("step %q: expected error containing %q, got %q", step.Name, expect.Error, err.Error()))
		}
		return
	case err != nil:
		result.AddError(fmt.Sprintf("step %q: %v", step.Name, err))
		return
	}
	if expect != nil && expect.Count != nil && sr.Count != *expect.Count {
		result.AddError(fmt.Sprintf("step %q: expected %d result(s), got %d", step.Name, *expect.Count, sr.Count))
	}
}

func (h *Harness) runQuery(ctx context.Context, spec *QuerySpec, sr *StepResult) error {
	q, err := spec.Build(h.session.Query(spec.Type))
	if err != nil {
		return err
	}

	if spec.Count {
		n, err := q.Count(ctx)
		if err != nil {
			return err
		}
		sr.Count = n
		return nil
	}

	items, err := q.AsJSON().Find(ctx)
	if err != nil {
		return err
	}
	sr.Items = items
	sr.Count = len(items)
	return nil
}

func (h *Harness) runUpdate(ctx context.Context, m *Mutation, sr *StepResult) error {
	e, err := h.findOne(ctx, m)
	if err != nil {
		return err
	}

	mapper := h.session.Database().Mapper()
	keys := make([]string, 0, len(m.Set))
	for k := range m.Set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, err := mapper.ConvertPath(e.Schema(), k, m.Set[k], mapping.Plain, mapping.Class)
		if err != nil {
			return err
		}
		if err := e.Set(k, v); err != nil {
			return err
		}
	}

	if err := h.session.Update(ctx, e); err != nil {
		return err
	}
	return h.record(e, sr)
}

func (h *Harness) runRemove(ctx context.Context, m *Mutation, sr *StepResult) error {
	e, err := h.findOne(ctx, m)
	if err != nil {
		return err
	}
	if err := h.session.Remove(ctx, e); err != nil {
		return err
	}
	return h.record(e, sr)
}

// findOne loads the single record selected by a mutation.
func (h *Harness) findOne(ctx context.Context, m *Mutation) (*entity.Entity, error) {
	q := h.session.Query(m.Type).Filter(query.Filter(m.Where))
	if err := q.Err(); err != nil {
		return nil, err
	}
	n, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 1 {
		return nil, fmt.Errorf("%s: %d records match, expected one", m.Type, n)
	}
	return q.FindOne(ctx)
}

func (h *Harness) record(e *entity.Entity, sr *StepResult) error {
	plain, err := h.session.Database().Mapper().ClassToPlain(e)
	if err != nil {
		return err
	}
	sr.Items = []map[string]any{plain}
	sr.Count = 1
	return nil
}

// Build applies the query fields to q and returns the first build error.
func (spec *QuerySpec) Build(q *query.Query) (*query.Query, error) {
	if len(spec.Filter) > 0 {
		q = q.Filter(query.Filter(spec.Filter))
	}
	for _, path := range spec.Join {
		q = q.JoinPath(path, false)
	}
	for _, path := range spec.InnerJoin {
		q = q.JoinPath(path, true)
	}
	if len(spec.Sort) > 0 {
		fields := make([]query.SortField, len(spec.Sort))
		for i, s := range spec.Sort {
			fields[i] = query.ParseSort(s)
		}
		q = q.Sort(fields...)
	}
	if len(spec.Select) > 0 {
		q = q.Select(spec.Select...)
	}
	if spec.Skip > 0 {
		q = q.Skip(spec.Skip)
	}
	if spec.Limit > 0 {
		q = q.Limit(spec.Limit)
	}
	return q, q.Err()
}
