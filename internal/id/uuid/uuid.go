// Package uuid issues the ids the simulator stamps on HTTP requests and on
// each telemetry run.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out UUIDv7 values, ordered by creation time.
type Generator struct{}

// NewUUIDGenerator returns a Generator. It satisfies api.IDGenerator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a request id in canonical string form.
func (g Generator) NewID() (string, error) {
	id, err := g.NewRawID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRawID returns a run id for telemetry records.
func (Generator) NewRawID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("new run id: %w", err)
	}
	return id, nil
}
