package tool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateUUIDV7(t *testing.T) {
	a, b := GenerateUUIDV7(), GenerateUUIDV7()
	require.NotEqual(t, a, b)
	require.True(t, IsUUID(a))
	require.Less(t, a, b)
	require.False(t, IsUUID("not-a-uuid"))
}
