package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/harness"
	"github.com/roach88/docmap/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database   string
	Schema     string
	Filter     string
	Joins      []string
	InnerJoins []string
	Sort       []string
	Select     []string
	Skip       int
	Limit      int
	Count      bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <Type>",
		Short: "Query an entity type and print plain JSON",
		Long: `Run a query through the join planner and print the results in plain
form. Joins take dotted paths to populate nested relations.

Example:
  docmap query User --filter '{"name": "marc"}' --join organisations.owner
  docmap query Organisation --inner-join users --sort -name --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default database.path)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (default schema.dir)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter as a JSON object")
	cmd.Flags().StringSliceVar(&opts.Joins, "join", nil, "relation to populate (dotted path, repeatable)")
	cmd.Flags().StringSliceVar(&opts.InnerJoins, "inner-join", nil, "relation that must be non-empty and is populated")
	cmd.Flags().StringSliceVar(&opts.Sort, "sort", nil, "sort fields, prefix with - for descending")
	cmd.Flags().StringSliceVar(&opts.Select, "select", nil, "fields to select")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "records to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records (0 = no limit)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matching records")

	return cmd
}

func runQuery(opts *QueryOptions, typeName string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(formatter.GetErrWriter())
	ctx := commandContext(cmd)

	schemaDir, err := opts.schemaDir(optionalArg(opts.Schema))
	if err != nil {
		return err
	}
	session, closeFn, err := opts.openSession(ctx, schemaDir, opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	q, err := opts.build(session.Query(typeName))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	if opts.Count {
		n, err := q.Count(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "query failed", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(map[string]int{"count": n})
		}
		fmt.Fprintln(formatter.Writer, n)
		return nil
	}

	items, err := q.AsJSON().Find(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	formatter.VerboseLog("Found %d %s record(s)", len(items), typeName)

	if formatter.Format == "json" {
		return formatter.Success(items)
	}
	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(formatter.Writer, string(out))
	return nil
}

// build applies the flags to q. Build errors surface through q.Err.
func (o *QueryOptions) build(q *query.Query) (*query.Query, error) {
	spec := harness.QuerySpec{
		Join:      o.Joins,
		InnerJoin: o.InnerJoins,
		Sort:      o.Sort,
		Select:    o.Select,
		Skip:      o.Skip,
		Limit:     o.Limit,
	}
	if o.Filter != "" {
		if err := json.Unmarshal([]byte(o.Filter), &spec.Filter); err != nil {
			return nil, fmt.Errorf("--filter: %w", err)
		}
	}
	return spec.Build(q)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
