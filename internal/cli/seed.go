package cli

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/docmap/internal/harness"
)

// FixtureFile is a YAML document of records to insert, in order.
//
//	fixtures:
//	  - type: User
//	    records:
//	      - {id: 00000000-0000-4000-8000-000000000001, name: admin}
//	  - type: Organisation
//	    records:
//	      - {id: 00000000-0000-4000-8000-000000000005, name: Microsoft, owner: 00000000-0000-4000-8000-000000000001}
//
// Records are plain data: references are given by primary key.
type FixtureFile struct {
	Fixtures []harness.Fixture `yaml:"fixtures"`
}

// SeedResult reports how many records were inserted per type.
type SeedResult struct {
	Inserted map[string]int `json:"inserted"`
	Total    int            `json:"total"`
}

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
	Schema   string
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Insert YAML fixtures through the mapping layer",
		Long: `Convert each fixture record from plain data to an entity instance and
insert it into the configured database. Sets are inserted in file order.

Example:
  docmap seed --schema ./schema --db ./docmap.db fixtures.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default database.path)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (default schema.dir)")

	return cmd
}

// LoadFixtures reads and parses a fixture file, rejecting unknown fields.
func LoadFixtures(path string) (*FixtureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var file FixtureFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, set := range file.Fixtures {
		if set.Type == "" {
			return nil, fmt.Errorf("invalid fixtures: fixtures[%d]: type is required", i)
		}
	}
	return &file, nil
}

func runSeed(opts *SeedOptions, fixturesPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(formatter.GetErrWriter())
	ctx := commandContext(cmd)

	fixtures, err := LoadFixtures(fixturesPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixtures", err)
	}

	schemaDir, err := opts.schemaDir(optionalArg(opts.Schema))
	if err != nil {
		return err
	}
	session, closeFn, err := opts.openSession(ctx, schemaDir, opts.Database, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	reg := session.Database().Registry()
	mapper := session.Database().Mapper()
	result := SeedResult{Inserted: make(map[string]int)}

	for i, set := range fixtures.Fixtures {
		s, err := reg.Get(set.Type)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("fixtures[%d]", i), err)
		}
		for j, record := range set.Records {
			e, err := mapper.PlainToClass(s, record)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("fixtures[%d].records[%d]", i, j), err)
			}
			if err := session.Add(ctx, e); err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("fixtures[%d].records[%d]", i, j), err)
			}
			formatter.VerboseLog("Inserted %s %v", set.Type, e.ID())
			result.Inserted[set.Type]++
			result.Total++
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	formatter.Check("Seeded %d record(s) into %d type(s)", result.Total, len(result.Inserted))
	return nil
}

func optionalArg(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
