package mock

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestlabs/vesting-actors/actors/runtime"
)

// Interface for a concrete actor type to be checked.
type actorExports interface {
	Exports() []interface{}
}

// Checks that every exported method has a signature usable by the dispatch machinery.
func CheckActorExports(t *testing.T, act actorExports) {
	for i, m := range act.Exports() {
		if i == 0 { // Send is implicit
			continue
		}
		if m == nil {
			continue
		}

		t.Run(reflect.TypeOf(m).String(), func(t *testing.T) {
			mt := reflect.TypeOf(m)
			require.Equal(t, reflect.Func, mt.Kind())
			require.Equal(t, 2, mt.NumIn())

			assert.Equal(t, reflect.TypeOf((*runtime.Runtime)(nil)).Elem(), mt.In(0))
			assert.Equal(t, reflect.Ptr, mt.In(1).Kind())
			assert.True(t, mt.In(1).Implements(typeOfCborUnmarshaler))

			require.Equal(t, 1, mt.NumOut())
			assert.True(t, mt.Out(0).Implements(typeOfCborMarshaler))
		})
	}
}
