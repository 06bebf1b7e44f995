// Package harness runs YAML scenarios against a docmap schema.
//
// A scenario seeds an in-memory SQLite database through a session, runs a
// list of steps and evaluates assertions over the step results and the
// final stored state. Step results can be compared against golden files.
//
// # Scenario Format
//
//	name: memberships
//	description: "Pivot joins over users and organisations"
//	schema: ../schema            # CUE schema directory, relative to this file
//	fixtures:
//	  - type: User
//	    records:
//	      - {id: "00000000-0000-4000-8000-000000000001", name: admin}
//	steps:
//	  - name: admins
//	    query:
//	      type: User
//	      filter: {name: admin}
//	      join: [organisations.owner]
//	      sort: ["-name"]
//	    expect: {count: 1}
//	  - name: rename
//	    update:
//	      type: User
//	      where: {name: admin}
//	      set: {name: root}
//	  - name: bad_join
//	    query: {type: User, join: [name]}
//	    expect: {error: NOT_A_REFERENCE}
//	assertions:
//	  - type: result_contains
//	    step: admins
//	    where: {name: admin}
//	  - type: final_state
//	    entity: User
//	    where: {name: root}
//	    expect: {id: "00000000-0000-4000-8000-000000000001"}
//
// # Steps
//
// Each step holds exactly one action:
//
//   - query: runs a query and records its plain results, or its count
//   - update: loads one record, sets plain values and updates it
//   - remove: loads one record and removes it
//
// An expect clause checks the number of results or that the step failed
// with an error containing the given text. A step failing without an
// expected error fails the scenario.
//
// # Assertion Types
//
//   - result_count: a step produced exactly count results
//   - result_contains: a step result matches where (subset match)
//   - result_order: the field values appear in this order in a step's results
//   - final_state: exactly one stored record matches where and has the
//     expected values, or none does when absent is set
package harness
