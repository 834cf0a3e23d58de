// Package actions materializes the interactive triggers (approve, reject,
// stop, retry) attached to build notifications, and executes them against
// the build controller when a recipient presses one.
package actions

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindApprove Kind = "approve"
	KindReject  Kind = "reject"
	KindStop    Kind = "stop"
	KindRetry   Kind = "retry"
)

// Ref names the build an action operates on.
type Ref struct {
	ProjectID string
	BuildID   string
}

// Button styles, matching the outbound platform's numeric vocabulary.
const (
	StyleSecondary = 2
	StyleSuccess   = 3
	StyleDanger    = 4
)

// Spec is one rendered action trigger. The relay core treats it as opaque;
// the outbound transport maps it onto a platform button.
type Spec struct {
	Kind     Kind
	Label    string
	Emoji    string
	Style    int
	CustomID string
}

// Factory creates action specs with encoded trigger ids.
// It is stateless; the zero value is ready to use.
type Factory struct{}

func (Factory) Create(kind Kind, ref Ref) Spec {
	s := Spec{Kind: kind, CustomID: EncodeCustomID(kind, ref)}
	switch kind {
	case KindApprove:
		s.Style = StyleSuccess
		s.Emoji = "✔️"
	case KindReject:
		s.Style = StyleDanger
		s.Emoji = "✖️"
	case KindStop:
		s.Style = StyleDanger
		s.Label = "Stop"
		s.Emoji = "🛑"
	case KindRetry:
		s.Style = StyleSecondary
		s.Label = "Retry"
		s.Emoji = "🔁"
	}
	return s
}

const customIDPrefix = "build"

var ErrBadCustomID = errors.New("actions: malformed custom id")

// EncodeCustomID packs kind and ref into a button custom id.
// Project ids and build ids never contain ':' so a plain join is unambiguous.
func EncodeCustomID(kind Kind, ref Ref) string {
	return strings.Join([]string{customIDPrefix, string(kind), ref.ProjectID, ref.BuildID}, ":")
}

// DecodeCustomID reverses EncodeCustomID.
func DecodeCustomID(id string) (Kind, Ref, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 || parts[0] != customIDPrefix {
		return "", Ref{}, fmt.Errorf("%w: %q", ErrBadCustomID, id)
	}
	kind := Kind(parts[1])
	switch kind {
	case KindApprove, KindReject, KindStop, KindRetry:
	default:
		return "", Ref{}, fmt.Errorf("%w: unknown kind %q", ErrBadCustomID, parts[1])
	}
	ref := Ref{ProjectID: parts[2], BuildID: parts[3]}
	if ref.ProjectID == "" || ref.BuildID == "" {
		return "", Ref{}, fmt.Errorf("%w: empty ref in %q", ErrBadCustomID, id)
	}
	return kind, ref, nil
}
