package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateOutTradeNo_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		no := GenerateOutTradeNo()
		require.LessOrEqual(t, len(no), 64)
		_, dup := seen[no]
		require.False(t, dup, "duplicate out_trade_no: %s", no)
		seen[no] = struct{}{}
	}
}

func TestGenerateUUIDV7_Distinct(t *testing.T) {
	require.NotEqual(t, GenerateUUIDV7(), GenerateUUIDV7())
}
