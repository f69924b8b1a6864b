package publish

// Flag mask bits routing messages to downstream targets. A target receives a
// message when its mask contains every bit of the message's flag.
const (
	FlagPose    = 1
	FlagDiag    = 2
	FlagSummary = 4
)
