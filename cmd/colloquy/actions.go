package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	colloquy "github.com/colloquy-dev/colloquy"
	"github.com/colloquy-dev/colloquy/observer"
)

// demoActions registers a stub for every action the spec references so any
// flow can run end-to-end without real backend integrations. Each stub
// echoes its inputs and synthesizes a value for every output the spec maps
// back into slots.
func demoActions(spec *colloquy.Spec, inst *observer.Instruments) *colloquy.ActionRegistry {
	registry := colloquy.NewActionRegistry()

	for _, f := range spec.Flows {
		for _, st := range f.Steps {
			if st.Type != colloquy.StepAction || st.Call == "" {
				continue
			}
			name := st.Call
			outputs := make([]string, 0, len(st.MapOutputs))
			for key := range st.MapOutputs {
				outputs = append(outputs, key)
			}

			fn := stubAction(name, outputs)
			if inst != nil {
				fn = observer.WrapAction(name, fn, inst)
			}
			registry.Register(name, fn)
		}
	}

	log.Printf("registered %d stub actions", len(registry.Names()))
	return registry
}

// stubAction fabricates deterministic outputs from the input slots.
func stubAction(name string, outputs []string) colloquy.ActionFunc {
	return func(_ context.Context, slots map[string]any) (map[string]any, error) {
		result := make(map[string]any, len(outputs))
		for i, key := range outputs {
			result[key] = fmt.Sprintf("%s-%d%d", strings.ToUpper(name[:min(3, len(name))]), len(slots), i)
		}
		return result, nil
	}
}
