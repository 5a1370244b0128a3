package refcat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		refnum uint64
		want   string
	}{
		{0, "NONE"},
		{1100012345, "N00012345"},
		{1200012345, "S00012345"},
		{1300012345, "UNKNOWN"},
		{1, "UNKNOWN"},
		{210811484, "K10811484"},
		{312345671234567, "DASCH_J123456.7+234567"},
		{412345672234567, "APASS_J123456.7-234567"},
		{412345673234567, "MALFORMED-DASCH/APASS"},
		{41234567, "MALFORMED-DASCH/APASS"},
		{5000100001, "T000100001"},
		{6123456789, "U123456789"},
		{7123, "UNHANDLED-GAIA1"},
		{8123, "UNHANDLED-GAIA2"},
		{9987654321, "ATLAS2_987654321"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Text(tt.refnum), "refnum %d", tt.refnum)
	}
}
