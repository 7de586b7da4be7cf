package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry, err := NewRegistry(namedJob("order-expiry"), nil, namedJob("outbox-retention"))
	require.NoError(t, err)
	assert.Equal(t, []string{"order-expiry", "outbox-retention"}, registry.Names())

	jobs := registry.Jobs()
	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(namedJob("order-expiry"), namedJob("order-expiry"))
	assert.ErrorContains(t, err, "duplicate job")

	registry := &Registry{}
	assert.ErrorContains(t, registry.Register(namedJob("  ")), "name required")
	assert.NoError(t, registry.Register(namedJob("ok")))
}

func TestRegistrySelect(t *testing.T) {
	registry, err := NewRegistry(namedJob("a"), namedJob("b"), namedJob("c"))
	require.NoError(t, err)

	subset, err := registry.Select("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, subset.Names())

	all, err := registry.Select()
	require.NoError(t, err)
	assert.Len(t, all.Jobs(), 3)

	_, err = registry.Select("missing")
	assert.ErrorContains(t, err, "unknown job")
}
