// Package uuid generates the row identifiers used for organizations, documents,
// chunks and crawl logs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements crawler.IDGenerator with UUIDv7, so IDs sort by creation time.
type Generator struct {
	source func() (uuid.UUID, error)
}

// NewUUIDGenerator creates a Generator backed by uuid.NewV7.
func NewUUIDGenerator() *Generator {
	return &Generator{source: uuid.NewV7}
}

// NewID returns the next identifier in canonical 36-character form.
func (g *Generator) NewID() (string, error) {
	source := g.source
	if source == nil {
		source = uuid.NewV7
	}
	id, err := source()
	if err != nil {
		return "", fmt.Errorf("generate row id: %w", err)
	}
	return id.String(), nil
}
