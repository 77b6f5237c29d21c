// Package agentstream implements one streaming agent exchange: a user message
// goes in, an ordered event stream comes out. A bounded step loop drives a
// model-inference client, executes the tool calls the model requests, and
// multiplexes three producers (model token deltas, tool lifecycle, data events
// emitted by running tools) into a single totally ordered sink.
//
// # Overview
//
// The Writer is the one sink per exchange. Every producer writes Events into
// it; writes are serialized, a single consumer drains them to the network
// boundary. Tools are registered in a Registry with a JSON Schema generated
// from their argument structs; the same schema is exported to the model and
// used to validate incoming tool calls before execution.
//
// Pipeline: user message → Orchestrator step loop → model stream (text deltas,
// tool calls) → Registry execution (tools may emit data-events mid-run) →
// tool outputs fed back into history → stream closed after the final step.
//
// # Key concepts
//
//   - Single Writer: all producers share one ordered sink; no client-side
//     reconciliation of parallel streams.
//   - Upsert key: repeated data-events with the same (topic, id) replace the
//     rendered entity instead of appending to it.
//   - Self-Correction: ClientError carries human-readable validation messages
//     back to the model; SystemError stays opaque.
//
// See Event, Writer, Tool, Registry and Orchestrator for the core types, and
// the provider, tools, uistate and httpapi packages for the boundaries.
package agentstream
