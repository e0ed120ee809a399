package plugin

import "github.com/ayusman/kathak/internal/protocol"

// NavSignals captures how the request that produced a response was issued,
// which feeds the navigation-depth transition below.
type NavSignals struct {
	// Back is set when the request carried the back sentinel selection.
	Back bool
	// Forward is set for a plain item activation: an action step selecting a
	// real item id, with no per-item or toolbar action attached.
	Forward bool
}

// SignalsFor derives the navigation signals from a request envelope.
func SignalsFor(req *protocol.Request) NavSignals {
	var sig NavSignals
	if req.Selected == nil {
		return sig
	}

	if req.Selected.ID == protocol.SelectionBack {
		sig.Back = true
		return sig
	}

	if req.Step == protocol.StepAction && req.Action == "" && !protocol.IsSentinel(req.Selected.ID) {
		sig.Forward = true
	}

	return sig
}

// NextDepth applies one navigation-depth transition. Depth is a non-negative
// integer, 0 at the top level. Only results, card, and form responses move
// depth; every other kind leaves it unchanged.
//
// Precedence: an explicit absolute depth wins outright; then back-navigation
// (signaled by the response, or implied by a back request the response does
// not override with forward); then forward-navigation (signaled by the
// response, or implied by a plain item activation the response does not
// override with back); otherwise the action mutated the current view in
// place.
func NextDepth(depth int, sig NavSignals, resp *protocol.Response) int {
	switch resp.Kind() {
	case protocol.KindResults, protocol.KindCard, protocol.KindForm:
	default:
		return depth
	}

	if resp.NavigationDepth != nil {
		if d := *resp.NavigationDepth; d > 0 {
			return d
		}
		return 0
	}

	if resp.NavigateBack || (sig.Back && !resp.NavigateForward) {
		if depth > 0 {
			return depth - 1
		}
		return 0
	}

	if resp.NavigateForward || (sig.Forward && !resp.NavigateBack) {
		return depth + 1
	}

	return depth
}
