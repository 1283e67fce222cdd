package scope

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestScopePrefixProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	segments := gen.SliceOfN(3, gen.Identifier())

	properties.Property("a scope applies to itself and every descendant", prop.ForAll(
		func(base []string, child []string) bool {
			prefix := strings.Join(base, "/")
			target := strings.Join(append(append([]string{}, base...), child...), "/")
			return Matches(prefix, prefix) && Matches(prefix, target)
		},
		segments,
		segments,
	))

	properties.Property("a descendant never applies to its strict ancestor", prop.ForAll(
		func(base []string, child []string) bool {
			prefix := strings.Join(base, "/")
			target := strings.Join(append(append([]string{}, base...), child...), "/")
			return !Matches(target, prefix)
		},
		segments,
		segments,
	))

	properties.Property("a type wildcard covers any value of that type", prop.ForAll(
		func(value string, rest []string) bool {
			target := strings.Join(append([]string{"repo:" + value}, rest...), "/")
			return Matches("repo:*", target)
		},
		gen.Identifier(),
		segments,
	))

	properties.TestingRun(t)
}
