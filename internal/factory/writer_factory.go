package factory

import (
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"fmt"
	"log"
)

// Env is the session state a writer may need at construction.
type Env struct {
	SessionID string
	OutputDir string
	Delays    *codec.DelayTable
}

// WriterFactory defines a function that creates a writer from its config.
type WriterFactory func(env *Env, def config.WriterDef) (model.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Create creates the enabled writers listed in defs. Writers created before
// a failure are closed again.
func Create(env *Env, defs []config.WriterDef) ([]model.Writer, error) {
	var writers []model.Writer

	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating writer of type: '%s'\n", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}

		w, err := factory(env, def)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}

		writers = append(writers, w)
	}

	return writers, nil
}

func closeAll(writers []model.Writer) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.Printf("Error closing writer %s: %v", w.Name(), err)
		}
	}
}
