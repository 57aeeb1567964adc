// Package ident produces identifiers unique within a process lifetime.
package ident

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

type Generator struct {
	sid *shortid.Shortid
}

func NewGenerator(worker uint8, seed uint64) (*Generator, error) {
	sid, err := shortid.New(worker, shortid.DefaultABC, seed)
	if err != nil {
		return nil, fmt.Errorf("new shortid: %w", err)
	}

	return &Generator{sid: sid}, nil
}

// UserID returns a short opaque id for a user record. Collision-free under
// concurrent same-millisecond calls; falls back to a uuid if the short form
// cannot be generated.
func (g *Generator) UserID() string {
	id, err := g.sid.Generate()
	if err != nil {
		return uuid.NewString()
	}

	return id
}

// MessageID returns a globally unique id for a message.
func (g *Generator) MessageID() string {
	return uuid.NewString()
}
