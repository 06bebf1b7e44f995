// Package schemaload reads entity declarations written in CUE into a
// schema registry.
//
// Declarations live under a top-level entity struct:
//
//	entity: User: {
//		name: "user2"
//		properties: {
//			id:      {type: "uuid", primary: true, default: "uuid"}
//			name:    {type: "string"}
//			manager: {type: "User", reference: true, optional: true}
//			organisations: {
//				type:  "Organisation"
//				array: true
//				backReference: via: "OrganisationMembership"
//			}
//		}
//	}
//
// Entities and properties keep their declaration order, which is the
// tie-break order of the reference resolver.
package schemaload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docmap/internal/schema"
)

// Mode controls how errors are handled during loading.
type Mode int

const (
	// FailFast stops on the first error encountered.
	FailFast Mode = iota
	// CollectAll collects all errors before returning.
	CollectAll
)

// Error codes shared with the CLI output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeProperties = "E101" // Missing properties
	ErrCodeType       = "E102" // Missing or invalid property type
	ErrCodeEnum       = "E103" // Enum without members
	ErrCodeDefault    = "E104" // Unknown default generator
	ErrCodeSchema     = "E201" // Schema rejected by the registry
	ErrCodeRelation   = "E202" // Relation does not resolve
)

// Result contains the results of loading a directory.
type Result struct {
	Registry  *schema.Registry
	CUEValue  cue.Value
	FileCount int
}

// LoadError represents an error that occurred during loading.
type LoadError struct {
	Code    string
	Entity  string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	prefix := e.Code
	if e.Entity != "" {
		prefix += ": " + e.Entity
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// LoadDir loads every CUE file of dir and compiles its entities.
// Relations are resolved once all entities are registered.
func LoadDir(dir string, mode Mode) (*Result, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	reg, errs := CompileValue(value, mode)
	return &Result{Registry: reg, CUEValue: value, FileCount: len(cueFiles)}, errs
}

// CompileString compiles CUE source held in memory. It fails on the first
// problem.
func CompileString(filename, src string) (*schema.Registry, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, convertCompileError(formatCUEError(err), "")
	}
	reg, errs := CompileValue(value, FailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return reg, nil
}

// CompileValue registers every entity of value and validates the relations.
// The registry is returned even when errors were collected.
func CompileValue(value cue.Value, mode Mode) (*schema.Registry, []error) {
	var errs []error
	reg := schema.NewRegistry()

	entitiesVal := value.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return reg, []error{&LoadError{Code: ErrCodeGeneric, Message: "no entities found"}}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return reg, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating entities: %v", err)}}
	}

	for iter.Next() {
		name := iter.Label()
		s, err := CompileEntity(iter.Value())
		if err == nil {
			if err = reg.Register(s); err != nil {
				err = &LoadError{Code: ErrCodeSchema, Entity: name, Message: err.Error(), Pos: iter.Value().Pos()}
			}
		}
		if err != nil {
			errs = append(errs, convertCompileError(err, name))
			if mode == FailFast {
				return reg, errs
			}
		}
	}

	if err := reg.Validate(); err != nil {
		for _, e := range unjoin(err) {
			errs = append(errs, &LoadError{Code: ErrCodeRelation, Message: e.Error()})
			if mode == FailFast {
				return reg, errs
			}
		}
	}

	return reg, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// convertCompileError converts a compile error to a LoadError with position info.
func convertCompileError(err error, entity string) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    mapFieldToErrorCode(compileErr.Field),
			Entity:  entity,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Entity:  entity,
		Message: err.Error(),
	}
}

func mapFieldToErrorCode(field string) string {
	switch field {
	case "properties":
		return ErrCodeProperties
	case "type":
		return ErrCodeType
	case "enum":
		return ErrCodeEnum
	case "default":
		return ErrCodeDefault
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}
