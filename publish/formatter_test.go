package publish

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPose(t *testing.T) {
	t.Parallel()

	t.Run("layout", func(t *testing.T) {
		t.Parallel()
		b := FormatPose(0xB50AC, 1700000000000, 42, 12.3456, -7.89, 1.5708)
		line := string(b)

		assert.True(t, strings.HasPrefix(line, "pose:"))
		assert.True(t, strings.HasSuffix(line, "\r\n"))

		fields := strings.Split(strings.TrimSuffix(line, "\r\n"), ",")
		require.Len(t, fields, 7)
		assert.Equal(t, "00000000000B50AC", fields[1])
		assert.Equal(t, "42", fields[2])
		assert.Equal(t, "12.346", fields[4])
		assert.Equal(t, "-7.890", fields[5])
		assert.Equal(t, "1.5708", fields[6])
	})

	t.Run("in-band length field matches the line length", func(t *testing.T) {
		t.Parallel()
		b := FormatPose(1, 0, 0, 0, 0, 0)
		lenStr := strings.TrimSpace(string(b[5:8]))
		n, err := strconv.Atoi(lenStr)
		require.NoError(t, err)
		assert.Equal(t, len(b), n)
	})

	t.Run("timestamp renders with millisecond precision", func(t *testing.T) {
		t.Parallel()
		b := FormatPose(1, 123, 0, 0, 0, 0)
		fields := strings.Split(string(b), ",")
		require.Len(t, fields, 7)
		assert.True(t, strings.HasSuffix(fields[3], ".123"), "got %q", fields[3])
		assert.Len(t, fields[3], len("20060102150405.000"))
	})
}
