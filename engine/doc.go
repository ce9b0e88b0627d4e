// Package engine is the turn-orchestration core: it consumes client
// submissions, drives sessions through model turns and tool execution, and
// streams typed progress events back to the front end.
//
// The submission loop owns the set of live sessions. Each session runs at
// most one task at a time; a task is one or more turns triggered by a user
// input. Tool calls proposed by the model pass through the tools package's
// approval gate and orchestrator, and their results are folded back into
// the session history in the order the model emitted them.
package engine
