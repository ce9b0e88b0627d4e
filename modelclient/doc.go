// Package modelclient defines the provider-agnostic Model Client contract
// used by the engine.
//
// A client accepts a conversation plus a tool schema and returns a lazy
// stream of response fragments: zero or more reasoning fragments, text
// fragments, and tool-call fragments, terminated by exactly one completion
// fragment carrying usage counters. The engine consumes fragments as they
// arrive so tool calls can begin executing while trailing text is still
// streaming.
//
// Provider adapters (an OpenAI- or Anthropic-style HTTP client, a local
// model) implement the Client interface. This package ships a gollm-backed
// adapter and a scripted client for deterministic tests. Transport failures
// are retried with bounded exponential backoff, but only before the first
// fragment has been delivered downstream; after that, retrying would
// duplicate partial output, so the error surfaces instead.
package modelclient
