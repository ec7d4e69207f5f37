// Package harness runs content scenarios end to end as executable contract
// tests.
//
// A scenario seeds roles and users, saves workflows and then drives the
// content service through a flow of operations. Every operation outcome,
// every workflow action and every outbound message is recorded in a trace
// that assertions and golden snapshots check.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  roles:
//	    - id: r-editor
//	      name: Editor
//	      permissions:
//	        - content_type_slug: Article
//	          create: { enabled: true }
//	  users:
//	    - id: editor
//	      role_ids: [r-editor]
//	schemas:
//	  Article: '{ Title: string }'
//	workflows:
//	  - id: wf-notify
//	    name: Notify
//	    trigger_content_type: Article
//	    trigger_event: Created
//	    actions:
//	      - type: Email
//	        parameters: { To: a@example.com, Subject: "{{id}}", Body: hi }
//	flow:
//	  - op: create
//	    as: a1
//	    user: editor
//	    content_type: Article
//	    data: { Title: Hello }
//	    expect:
//	      version: 1
//	  - op: update
//	    user: editor
//	    id: $a1
//	    version: 5
//	    data: { Title: Stale }
//	    expect:
//	      error: VERSION_CONFLICT
//	assertions:
//	  - type: trace_contains
//	    action: Email
//	    params: { To: a@example.com }
//	  - type: final_state
//	    content: $a1
//	    expect: { version: 1, data: { Title: Hello } }
//
// # Assertion Types
//
//   - trace_contains: an action ran with matching parameters
//   - trace_order: actions ran in the given order
//   - trace_count: an action ran exactly N times
//   - final_state: the stored content matches the expected fields
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory SQLite store with a step
// clock and sequential ids (content-1, exec-1, task-1), so traces are
// identical across runs and can be compared against golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/registration.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
