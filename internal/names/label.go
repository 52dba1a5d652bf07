// Package names generates short mnemonic labels for subscriptions.
// Labels are attached at creation time and show up in logs and
// default-formatted notifications, where a raw UUID would be useless
// to a human scanning a terminal.
package names

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

var (
	adjectives = []string{
		"patient", "restless", "vigilant", "drowsy", "punctual",
		"wary", "eager", "quiet", "insistent", "casual",
		"attentive", "skeptical", "hopeful", "stubborn", "gentle",
		"brisk", "languid", "keen", "steady", "fickle",
	}

	watchers = []string{
		"sentry", "lookout", "beacon", "herald", "warden",
		"monitor", "scout", "signal", "courier", "relay",
		"watchman", "observer", "tripwire", "listener", "picket",
	}
)

// Label returns a random two-word watcher label plus a short numeric
// disambiguator, e.g. "patient-lookout-41".
func Label() string {
	adj := adjectives[rng.Intn(len(adjectives))]
	noun := watchers[rng.Intn(len(watchers))]
	return fmt.Sprintf("%s-%s-%02d", adj, noun, rng.Intn(100))
}

// Valid reports whether s looks like a label produced by Label. Used
// by callers that persist labels and want to reject hand-edited junk.
func Valid(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts[:2] {
		if p == "" || strings.ToLower(p) != p {
			return false
		}
	}
	return len(parts[2]) == 2
}
