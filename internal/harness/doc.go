// Package harness replays scripted observation sequences through the
// monitor and checks what it reports and stores.
//
// A scenario names one source and lists the record lists it "fetches" on
// successive cycles. Each step runs a real monitor cycle against a fresh
// in-memory store with a deterministic clock and run ids, so the resulting
// trace is byte-stable and can be compared against a golden file.
//
// Scenario file format (YAML, unknown keys rejected):
//
//	name: price-drop
//	description: a changed price is reported and stored
//	source:
//	  name: shop
//	  key_fields: [title]
//	  compare_fields: [price]
//	  price_field: price
//	  retention: 2
//	steps:
//	  - records:
//	      - {title: Lamp, price: "$10"}
//	    expect:
//	      status: baseline
//	  - records:
//	      - {title: Lamp, price: "$8"}
//	    expect:
//	      status: changed
//	      modified: [Lamp]
//	  - records:
//	      - {title: Lamp, price: "$9"}
//	    fail: save
//	    expect:
//	      status: failed
//	assertions:
//	  - type: snapshot_count
//	    count: 2
//	  - type: latest_ids
//	    ids: [Lamp]
//
// A step may set fail to "latest", "save" or "prune" to inject a storage
// error into that cycle.
//
// Supported assertions:
//   - snapshot_count: number of stored snapshots of the source
//   - latest_ids: identifiers of the latest snapshot, in stored order
//   - notification_count: number of dispatched events of a kind
//   - status_sequence: cycle statuses in step order
package harness
