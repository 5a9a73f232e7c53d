package core

import (
	"errors"
	"fmt"

	m "urs/data/models"
)

var ErrCapabilityUnavailable = errors.New("capability unavailable")

// Capability is either Available with a handle or Unavailable with a reason
type Capability[T any] struct {
	handle    T
	available bool
	reason    string
}

func Available[T any](handle T) Capability[T] {
	return Capability[T]{handle: handle, available: true}
}

func Unavailable[T any](reason string) Capability[T] {
	return Capability[T]{reason: reason}
}

func (c Capability[T]) Get() (T, bool) {
	return c.handle, c.available
}

func (c Capability[T]) Available() bool {
	return c.available
}

// Err is nil for an available capability
func (c Capability[T]) Err() error {
	if c.available {
		return nil
	}
	if c.reason == "" {
		return ErrCapabilityUnavailable
	}
	return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, c.reason)
}

// Clusterer renders a hierarchical clustering of the return columns
type Clusterer interface {
	PlotClusters(rt m.ReturnTable, settings m.ClusterSettings) (*m.ClusterSummary, error)
}

// Reporter writes a tear sheet for one asset measured against a benchmark
type Reporter interface {
	TearSheet(asset, benchmark m.ReturnSeries, output string) error
}

type Capabilities struct {
	Clustering Capability[Clusterer]
	Reporting  Capability[Reporter]
}
