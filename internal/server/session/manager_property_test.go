package session

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestManagerUIDsStrictlyIncreasing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("NextUID calls within one manager are strictly increasing", prop.ForAll(
		func(calls int) bool {
			m := NewManager()
			prev := uint32(0)
			for i := 0; i < calls; i++ {
				uid := m.NextUID()
				if uid <= prev {
					return false
				}
				prev = uid
			}
			return true
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
