package publish

import (
	"fmt"
	"time"
)

// FormatPose renders a best-estimate pose as a downstream feed line:
//
//	pose:   ,<id-16-hex>,<seq>,<timestamp>,<x>,<y>,<theta>\r\n
//
// The three spaces after "pose:" are a length field: the consumer protocol
// expects the total line length written in-band at bytes 5..7, so the
// placeholder is patched after formatting.
func FormatPose(agentID int, tsMs int64, seq uint16, x, y, theta float64) []byte {
	t := time.UnixMilli(tsMs)
	timeStr := t.Format("20060102150405.000")

	idStr := fmt.Sprintf("%016X", agentID)

	body := fmt.Sprintf("pose:   ,%s,%d,%s,%.3f,%.3f,%.4f\r\n",
		idStr, seq, timeStr, x, y, theta)

	b := []byte(body)
	nLen := len(b)
	if nLen >= 100 {
		b[5] = byte('0' + (nLen / 100))
	}
	b[6] = byte('0' + ((nLen / 10) % 10))
	b[7] = byte('0' + (nLen % 10))

	return b
}
