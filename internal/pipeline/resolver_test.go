package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Inputs) (any, error) { return "ok", nil }

func stage(name string, deps ...string) Stage {
	return Stage{Name: name, DependsOn: deps, Compute: noop}
}

func TestResolveChain(t *testing.T) {
	plan, err := Resolve([]Stage{stage("C", "B"), stage("B", "A"), stage("A")})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, plan.Order())
}

func TestResolveTiesFollowDeclarationOrder(t *testing.T) {
	plan, err := Resolve([]Stage{
		stage("prices"),
		stage("news"),
		stage("returns", "prices"),
		stage("quality", "prices", "returns"),
		stage("report", "prices", "returns", "news", "quality"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"prices", "news", "returns", "quality", "report"}, plan.Order())
}

func TestResolveDiamond(t *testing.T) {
	plan, err := Resolve([]Stage{stage("D", "B", "C"), stage("C", "A"), stage("B", "A"), stage("A")})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B", "D"}, plan.Order())
}

func TestResolveMutualDependencyIsCycle(t *testing.T) {
	_, err := Resolve([]Stage{stage("A", "B"), stage("B", "A")})

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"A", "B", "A"}, cycleErr.Path)
}

func TestResolveSelfDependencyIsCycle(t *testing.T) {
	_, err := Resolve([]Stage{stage("A"), stage("B", "B")})

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"B", "B"}, cycleErr.Path)
}

func TestResolveIndirectCycle(t *testing.T) {
	_, err := Resolve([]Stage{stage("root"), stage("A", "root", "C"), stage("B", "A"), stage("C", "B")})

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Path, 4)
	assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
}

func TestResolveUnknownDependency(t *testing.T) {
	_, err := Resolve([]Stage{stage("A"), stage("B", "missing")})

	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "B", unknown.Stage)
	assert.Equal(t, "missing", unknown.Dependency)
}

func TestResolveRejectsMalformedStages(t *testing.T) {
	cases := map[string][]Stage{
		"empty":     nil,
		"no name":   {stage("")},
		"duplicate": {stage("A"), stage("A")},
		"nil func":  {{Name: "A"}},
	}
	for name, stages := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(stages)
			var invalid *InvalidStageError
			assert.True(t, errors.As(err, &invalid), "got %v", err)
		})
	}
}

func TestResolveCopiesDeclarations(t *testing.T) {
	deps := []string{"A"}
	plan, err := Resolve([]Stage{stage("A"), {Name: "B", DependsOn: deps, Compute: noop}})
	require.NoError(t, err)

	deps[0] = "mutated"
	got, ok := plan.Dependencies("B")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, got)
}
