package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseUsername(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Mia Tan", "miatan"},
		{"Jos\u00e9 \u00d1\u00fa\u00f1ez", "josenunez"},
		{"Zoe\u0308", "zoe"},
		{"O'Brien-Smith 2nd", "obriensmith2nd"},
		{"\u5f20\u4f1f", "user"},
		{"   ", "user"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, BaseUsername(tc.in), tc.in)
	}
	assert.Len(t, BaseUsername(strings.Repeat("a", 60)), maxUsernameBase)
}

func TestNextFreeUsername(t *testing.T) {
	assert.Equal(t, "mia", nextFreeUsername("mia", nil))
	taken := map[string]struct{}{"mia": {}, "mia1": {}, "mia3": {}}
	assert.Equal(t, "mia2", nextFreeUsername("mia", taken))
}
