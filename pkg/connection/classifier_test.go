package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/resock/resock-go/pkg/wire"
)

func TestIsReconnectEligible(t *testing.T) {
	denied := []wire.CloseCode{1000, 1003, 1008, 1009, 1011, 4000}
	for _, code := range denied {
		assert.False(t, IsReconnectEligible(code), "code %d", code)
	}

	deniedSet := map[wire.CloseCode]bool{}
	for _, code := range denied {
		deniedSet[code] = true
	}
	for code := wire.CloseCode(0); code < 5000; code++ {
		if deniedSet[code] {
			continue
		}
		if !IsReconnectEligible(code) {
			t.Errorf("code %d should be eligible", code)
		}
	}

	assert.True(t, IsReconnectEligible(wire.CloseAbnormalClosure))
	assert.True(t, IsReconnectEligible(4002))
	assert.True(t, IsReconnectEligible(wire.CloseInactivity))
}
