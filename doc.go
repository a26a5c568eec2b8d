// Package colloquy is a dialogue orchestration runtime. It compiles
// declarative flow specifications (YAML) into executable step graphs and
// drives multi-turn conversations: each user turn is interpreted against the
// current dialogue state, the graph advances until a step needs user input,
// and the session checkpoint is persisted so conversations survive process
// restarts.
//
// The runtime is deliberately thin at its edges. Natural-language
// understanding (NLU), effectful actions, slot normalization, checkpoint
// persistence, and transport are all interfaces; the engine owns only the
// compiler, the per-turn scheduler, the flow stack, and the pattern
// dispatcher that reconciles interpretations (corrections, cancellations,
// confirmations, digressions) with the currently executing step.
//
// Suspension is a state property, not a coroutine: a step that needs user
// input records a pending task on the serialisable state and the turn
// returns. The next turn reconstructs everything from the checkpoint, so a
// conversation can resume in a different process.
package colloquy
