package playback

import (
	"fmt"
	"math"

	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
)

// StatusLine renders a control event for the chat log, e.g.
// "alice paused the video at 01:05".
func StatusLine(user string, action protocol.Action, seconds float64) string {
	switch action {
	case protocol.ActionPlay:
		return fmt.Sprintf("%s played the video at %s", user, FormatTimestamp(seconds))
	case protocol.ActionPause:
		return fmt.Sprintf("%s paused the video at %s", user, FormatTimestamp(seconds))
	case protocol.ActionSeek:
		return fmt.Sprintf("%s seeked the video to %s", user, FormatTimestamp(seconds))
	default:
		return fmt.Sprintf("%s sent %q at %s", user, string(action), FormatTimestamp(seconds))
	}
}

// FormatTimestamp prints mm:ss, or hh:mm:ss from one hour on.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
