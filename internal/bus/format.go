package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/mistakeknot/vigil/internal/core"
)

// validateInput checks a subscribe request for well-formedness. No
// state is touched.
func validateInput(input SubscribeInput) error {
	if strings.TrimSpace(input.SubscriberSession) == "" {
		return invalidInput("subscriber session required")
	}
	if len(input.EventTypes) == 0 {
		return invalidInput("at least one event type required")
	}
	for _, et := range input.EventTypes {
		if !core.ValidEventType(et) {
			return invalidInput("unknown event type %q", et)
		}
	}
	return nil
}

// formatNotification renders the message for a matched event: either
// the subscription's template with placeholders substituted, or the
// default machine-parsable form. Thread paths are appended when the
// thread store knows the session.
func (b *Bus) formatNotification(ctx context.Context, ev core.AgentEvent, sub core.Subscription, threads ThreadStore) string {
	var content string
	if sub.MessageTemplate != "" {
		content = substitute(sub.MessageTemplate, ev)
	} else {
		content = fmt.Sprintf("[VIGIL:%s:%s] %s (%s) went from %q to %q on team %s",
			sub.ID, ev.Type, ev.MemberName, ev.SessionName, ev.PreviousValue, ev.NewValue, ev.TeamName)
	}

	if threads != nil {
		recs, err := threads.FindThreadsForAgent(ctx, ev.SessionName)
		if err != nil {
			b.logger.Warn().Err(err).Str("session", ev.SessionName).Msg("thread lookup failed")
		} else if len(recs) > 0 {
			paths := make([]string, len(recs))
			for i, r := range recs {
				paths[i] = r.FilePath
			}
			content += fmt.Sprintf(" [threads: %s]", strings.Join(paths, ", "))
		}
	}
	return content
}

// substitute applies the fixed placeholder set as ordered global
// replacements. Not a general template language.
func substitute(template string, ev core.AgentEvent) string {
	pairs := []struct {
		placeholder string
		value       string
	}{
		{"{memberName}", ev.MemberName},
		{"{sessionName}", ev.SessionName},
		{"{eventType}", string(ev.Type)},
		{"{previousValue}", ev.PreviousValue},
		{"{newValue}", ev.NewValue},
		{"{teamName}", ev.TeamName},
		{"{teamId}", ev.TeamID},
		{"{memberId}", ev.MemberID},
	}
	out := template
	for _, p := range pairs {
		out = strings.ReplaceAll(out, p.placeholder, p.value)
	}
	return out
}
