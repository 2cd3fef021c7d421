package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	m := map[string]any{
		"host":    "db",
		"port":    float64(5433),
		"conns":   4,
		"wide":    int64(7),
		"timeout": "30",
		"bad":     "thirty",
		"encrypt": "false",
		"trust":   true,
	}

	assert.Equal(t, "db", StringOption(m, "host"))
	assert.Equal(t, "", StringOption(m, "port"))

	assert.Equal(t, 5433, IntOption(m, "port", 1))
	assert.Equal(t, 4, IntOption(m, "conns", 1))
	assert.Equal(t, 7, IntOption(m, "wide", 1))
	assert.Equal(t, 30, IntOption(m, "timeout", 1))
	assert.Equal(t, 1, IntOption(m, "bad", 1))
	assert.Equal(t, 1, IntOption(m, "missing", 1))

	assert.False(t, BoolOption(m, "encrypt", true))
	assert.True(t, BoolOption(m, "trust", false))
	assert.True(t, BoolOption(m, "missing", true))
}
