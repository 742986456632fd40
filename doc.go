// Package toolloop runs a tool-augmented conversation with a chat-completion model:
// it offers the model a set of typed tools, executes the calls the model makes, feeds
// the results back and repeats until the model answers or the iteration budget runs out.
//
// # Overview
//
// LLMs produce tool calls as JSON. This package turns that JSON into concrete Go
// function calls: validate (against the same JSON Schema shown to the LLM) → decode →
// execute → return the result text, or a clear error text for self-correction.
//
// Pipeline: Schema[T] + handler func(ctx, T) → NewTool → Tool → Registry →
// Loop (Transport.Send, Registry.Invoke, transcript) → final answer.
//
// # Key concepts
//
//   - Single Source of Truth: one schema document drives both what the model is told and
//     how incoming arguments are validated. Schemas are reflected from Go types
//     (NewExtractor) or declared by hand (Declare, Object, String, ...).
//   - Type erasure: NewTool binds a Schema[T] and a handler over the same T at compile
//     time; the Registry stores only the Tool capability.
//   - Self-Correction: invalid arguments and handler failures are sent back to the model
//     as tool results; only unknown tools, transport failures, malformed responses and
//     budget exhaustion end a run.
//   - Ordering: tool calls of one assistant turn run sequentially, in emitted order, and
//     every call is answered before the next request.
//
// # Example
//
//	type Args struct {
//	    Location string `json:"location" jsonschema:"The city"`
//	}
//	weather, err := toolloop.NewReflectedTool("get_weather", "Current weather",
//	    func(_ context.Context, a Args) (string, error) {
//	        return "Here's the weather in " + a.Location + ": 32°C", nil
//	    })
//	if err != nil { ... }
//	reg := toolloop.NewRegistry()
//	reg.MustRegister(weather)
//	answer, err := toolloop.NewLoop(transport, reg).Run(ctx, "What's the weather in Paris?")
package toolloop
