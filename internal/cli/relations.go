package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docmap/internal/schema"
)

// RelationInfo describes one resolved relation property.
type RelationInfo struct {
	Type     string `json:"type"`
	Property string `json:"property"`
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Array    bool   `json:"array,omitempty"`
	Pivot    string `json:"pivot,omitempty"`
	Left     string `json:"left,omitempty"`
	Right    string `json:"right,omitempty"`
	Reverse  string `json:"reverse,omitempty"`
}

// EntityInfo lists the relations of one entity type.
type EntityInfo struct {
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	PrimaryKey string         `json:"primary_key"`
	Relations  []RelationInfo `json:"relations"`
}

// NewRelationsCommand creates the relations command.
func NewRelationsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relations [schema-dir]",
		Short: "Print the resolved relation graph",
		Long: `Print every reference and back-reference of the declared entities,
with the pivot entity and reverse property each back-reference resolves to.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := rootOpts.schemaDir(args)
			if err != nil {
				return err
			}
			return runRelations(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runRelations(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	reg, err := loadRegistry(schemaDir)
	if err != nil {
		return err
	}

	entities, err := describeRelations(reg)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to resolve relations", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(entities)
	}

	for _, e := range entities {
		typeColor.Fprint(formatter.Writer, e.Type)
		dimColor.Fprintf(formatter.Writer, " (%s, key %s)\n", e.Collection, e.PrimaryKey)
		if len(e.Relations) == 0 {
			fmt.Fprintln(formatter.Writer, "  no relations")
		}
		for _, rel := range e.Relations {
			fmt.Fprintf(formatter.Writer, "  %s\n", rel)
		}
	}
	return nil
}

// String renders the relation on one line.
func (r RelationInfo) String() string {
	target := r.Target
	if r.Array {
		target += "[]"
	}
	switch {
	case r.Pivot != "":
		return fmt.Sprintf("%s: %s %s via %s (%s.%s -> %s.%s)",
			r.Property, r.Kind, target, r.Pivot, r.Pivot, r.Left, r.Pivot, r.Right)
	case r.Reverse != "":
		return fmt.Sprintf("%s: %s %s (%s.%s)", r.Property, r.Kind, target, r.Target, r.Reverse)
	default:
		return fmt.Sprintf("%s: %s %s", r.Property, r.Kind, target)
	}
}

func describeRelations(reg *schema.Registry) ([]EntityInfo, error) {
	var out []EntityInfo
	for _, s := range reg.Schemas() {
		info := EntityInfo{
			Type:       s.TypeName(),
			Collection: s.Name(),
			PrimaryKey: s.PrimaryKeyName(),
			Relations:  []RelationInfo{},
		}
		for _, p := range s.References() {
			ri := RelationInfo{
				Type:     s.TypeName(),
				Property: p.Name(),
				Kind:     p.ReferenceKind().String(),
				Target:   p.Target(),
				Array:    p.IsArray(),
			}
			if p.IsBackReference() {
				rel, err := reg.ResolveBackReference(p)
				if err != nil {
					return nil, err
				}
				if rel.IsPivot() {
					ri.Pivot = rel.Pivot.TypeName()
					ri.Left = rel.Left.Name()
					ri.Right = rel.Right.Name()
				} else {
					ri.Reverse = rel.Reverse.Name()
				}
			}
			info.Relations = append(info.Relations, ri)
		}
		out = append(out, info)
	}
	return out, nil
}
