package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/tracker"
)

// FormatTransition renders the notification text for a transition.
func FormatTransition(t tracker.Transition) string {
	emoji := "✅"
	if t.Current == checker.StatusDown {
		emoji = "❌"
	}
	at := t.At.UTC().Format(time.RFC3339)
	current := strings.ToUpper(string(t.Current))

	if t.Previous == nil {
		return fmt.Sprintf("%s %s is %s (previously unknown) at %s", emoji, t.Target.URL, current, at)
	}
	previous := strings.ToUpper(string(*t.Previous))
	return fmt.Sprintf("%s %s is now %s (was %s) at %s", emoji, t.Target.URL, current, previous, at)
}
