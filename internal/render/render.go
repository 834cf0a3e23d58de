// Package render maps a build event onto the notification shown to
// recipients. Rendering is a pure function of the event; it never
// performs I/O.
package render

import (
	"fmt"
	"strings"
	"time"

	"buildrelay/internal/actions"
	"buildrelay/internal/build"
)

// Category classifies a rendered notification by what the recipient
// can do with it.
type Category string

const (
	CategoryAwaitingDecision Category = "awaiting-decision"
	CategoryActive           Category = "active"
	CategoryTerminal         Category = "terminal"
	CategoryUnknown          Category = "unknown"
)

// Body is the platform-neutral notification content. The outbound
// transport maps it onto embeds/buttons.
type Body struct {
	Title       string
	Description string
	Actions     []actions.Spec
}

var statusTitles = map[build.Status]string{
	build.StatusPending:       "🔒 Awaiting Approval",
	build.StatusQueued:        "⏳  Build Queued",
	build.StatusWorking:       "🔄  Build Started",
	build.StatusSuccess:       "✅  Build Succeeded",
	build.StatusCancelled:     "❌  Build Cancelled",
	build.StatusFailure:       "❌  Build Failed",
	build.StatusInternalError: "❔  Internal Error",
	build.StatusTimeout:       "⏰  Build Timed Out",
	build.StatusExpired:       "⏰  Build Expired",
}

// Renderer composes notification bodies. Stateless apart from the
// injected trigger factory.
type Renderer struct {
	factory actions.Factory
}

func New(factory actions.Factory) *Renderer {
	return &Renderer{factory: factory}
}

// Render produces the notification body and its category for one event.
func (r *Renderer) Render(ev *build.Event) (Body, Category) {
	ref := actions.Ref{ProjectID: ev.ProjectID, BuildID: ev.SubjectID}

	var (
		body Body
		cat  Category
	)

	switch {
	case ev.Status == build.StatusPending:
		cat = CategoryAwaitingDecision
		body.Title = statusTitles[ev.Status]
		body.Actions = []actions.Spec{
			r.factory.Create(actions.KindApprove, ref),
			r.factory.Create(actions.KindReject, ref),
		}
	case ev.Status == build.StatusQueued || ev.Status == build.StatusWorking:
		cat = CategoryActive
		body.Title = statusTitles[ev.Status]
		body.Actions = []actions.Spec{r.factory.Create(actions.KindStop, ref)}
	case ev.Status.Terminal():
		cat = CategoryTerminal
		body.Title = statusTitles[ev.Status]
		body.Actions = []actions.Spec{r.factory.Create(actions.KindRetry, ref)}
	default:
		cat = CategoryUnknown
		body.Title = "Unknown Build Status"
	}

	body.Description = describe(ev)
	return body, cat
}

func describe(ev *build.Event) string {
	var b strings.Builder

	name := strings.ReplaceAll(ev.TriggerName, "-", " ")
	if name == "" {
		name = "Unknown Project"
	}
	fmt.Fprintf(&b, "**%s**\n%s", name, ev.SubjectID)
	if ev.LogURL != "" {
		fmt.Fprintf(&b, " - [(View Logs)](%s)", ev.LogURL)
	}

	if len(ev.Images) > 0 {
		b.WriteString("\n\n**Built Images:**\n")
		for _, img := range ev.Images {
			fmt.Fprintf(&b, "- %s\n", img)
		}
	}

	switch {
	case !ev.StartTime.IsZero() && !ev.FinishTime.IsZero():
		fmt.Fprintf(&b, "\n\n*Started at <t:%d:T> and took %s.*",
			ev.StartTime.Unix(), FormatDuration(ev.FinishTime.Sub(ev.StartTime)))
	case !ev.StartTime.IsZero():
		fmt.Fprintf(&b, "\n\n*Started at <t:%d:T>.*", ev.StartTime.Unix())
	}

	return b.String()
}

// FormatDuration renders a duration as "1 hour, 2 minutes, 3 seconds",
// omitting zero-valued components.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, plural(h, "hour"))
	}
	if m > 0 {
		parts = append(parts, plural(m, "minute"))
	}
	if s > 0 {
		parts = append(parts, plural(s, "second"))
	}
	if len(parts) == 0 {
		return "0 seconds"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
