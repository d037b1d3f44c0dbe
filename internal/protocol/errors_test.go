package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKnownCode(t *testing.T) {
	for _, c := range []string{"", ErrProtoBadRequest, ErrProtoVersion, ErrBadRequest, ErrForbidden, ErrNotFound, ErrBusy, ErrInternal} {
		assert.Truef(t, IsKnownCode(c), "code %q", c)
	}
	// Teleport failure codes travel inside TP_EVENT, not as observer errors.
	assert.False(t, IsKnownCode("E_TP_COOLDOWN"))
	assert.False(t, IsKnownCode("E_NOT_DEFINED"))
}
