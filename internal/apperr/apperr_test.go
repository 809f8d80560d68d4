package apperr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validationf("bad %s", "field"), KindValidation},
		{"forbidden", Forbiddenf("no"), KindAuthorization},
		{"conflict", Conflictf("dup"), KindConflict},
		{"not found", NotFoundf("missing"), KindNotFound},
		{"transient", Transient(fmt.Errorf("db down"), "load user"), KindTransient},
		{"plain", fmt.Errorf("boom"), KindTransient},
		{"wrapped", fmt.Errorf("ctx: %w", Conflictf("dup")), KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageHidesTransientDetails(t *testing.T) {
	err := Transient(fmt.Errorf("dial tcp 10.0.0.1:5432"), "load user")
	require.Error(t, err)
	assert.Equal(t, "load user", Message(err))
	assert.Contains(t, err.Error(), "dial tcp")
	assert.Equal(t, "internal error", Message(fmt.Errorf("raw")))
	assert.Equal(t, "bad field", Message(Validationf("bad field")))
}

func TestTransientNil(t *testing.T) {
	assert.NoError(t, Transient(nil, "noop"))
	assert.False(t, Is(nil, KindTransient))
}
