package generator

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator is an interface that defines a method to generate a new value of type T.
// The interaction flows use it to mint instance IDs for custom IDs.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator is a generator that produces UUIDv4 strings.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var _ Generator[string] = &UUIDV4Generator{}

// SequenceGenerator produces "prefix-1", "prefix-2", ...
// It is safe for concurrent use and mostly useful where IDs must be predictable.
type SequenceGenerator struct {
	Prefix  string
	counter atomic.Uint64
}

func (g *SequenceGenerator) Next() (string, error) {
	n := g.counter.Add(1)
	return g.Prefix + "-" + strconv.FormatUint(n, 10), nil
}

var _ Generator[string] = &SequenceGenerator{}
