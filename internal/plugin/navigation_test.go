package plugin

import (
	"testing"

	"github.com/ayusman/kathak/internal/protocol"
)

func depthOf(d int) *int {
	return &d
}

func resultsResp() *protocol.Response {
	return &protocol.Response{Results: []protocol.Result{}}
}

func TestNextDepth(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		sig   NavSignals
		resp  *protocol.Response
		want  int
	}{
		{
			name:  "plain item click increments",
			depth: 0,
			sig:   NavSignals{Forward: true},
			resp:  resultsResp(),
			want:  1,
		},
		{
			name:  "back request decrements",
			depth: 2,
			sig:   NavSignals{Back: true},
			resp:  resultsResp(),
			want:  1,
		},
		{
			name:  "back request at zero stays at zero",
			depth: 0,
			sig:   NavSignals{Back: true},
			resp:  resultsResp(),
			want:  0,
		},
		{
			name:  "response navigateBack decrements without request signal",
			depth: 3,
			sig:   NavSignals{},
			resp:  &protocol.Response{Results: []protocol.Result{}, NavigateBack: true},
			want:  2,
		},
		{
			name:  "response navigateForward increments without request signal",
			depth: 1,
			sig:   NavSignals{},
			resp:  &protocol.Response{Results: []protocol.Result{}, NavigateForward: true},
			want:  2,
		},
		{
			name:  "explicit depth wins over signals",
			depth: 1,
			sig:   NavSignals{Forward: true},
			resp:  &protocol.Response{Results: []protocol.Result{}, NavigationDepth: depthOf(5)},
			want:  5,
		},
		{
			name:  "explicit negative depth clamps to zero",
			depth: 2,
			sig:   NavSignals{},
			resp:  &protocol.Response{Results: []protocol.Result{}, NavigationDepth: depthOf(-3)},
			want:  0,
		},
		{
			name:  "response forward overrides back request",
			depth: 2,
			sig:   NavSignals{Back: true},
			resp:  &protocol.Response{Results: []protocol.Result{}, NavigateForward: true},
			want:  3,
		},
		{
			name:  "response back overrides forward request",
			depth: 2,
			sig:   NavSignals{Forward: true},
			resp:  &protocol.Response{Results: []protocol.Result{}, NavigateBack: true},
			want:  1,
		},
		{
			name:  "no signals leaves depth unchanged",
			depth: 2,
			sig:   NavSignals{},
			resp:  resultsResp(),
			want:  2,
		},
		{
			name:  "card responses navigate",
			depth: 0,
			sig:   NavSignals{Forward: true},
			resp:  &protocol.Response{Card: &protocol.Card{Title: "t", Content: "c"}},
			want:  1,
		},
		{
			name:  "form responses navigate",
			depth: 1,
			sig:   NavSignals{Forward: true},
			resp:  &protocol.Response{Form: &protocol.Form{Title: "f"}},
			want:  2,
		},
		{
			name:  "execute responses never move depth",
			depth: 2,
			sig:   NavSignals{Forward: true},
			resp:  &protocol.Response{Execute: &protocol.Execute{Notify: "ok"}},
			want:  2,
		},
		{
			name:  "error responses never move depth",
			depth: 2,
			sig:   NavSignals{Back: true},
			resp:  &protocol.Response{Message: "boom"},
			want:  2,
		},
		{
			name:  "prompt responses never move depth",
			depth: 1,
			sig:   NavSignals{Forward: true},
			resp:  &protocol.Response{Prompt: &protocol.Prompt{Text: "more?"}},
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextDepth(tt.depth, tt.sig, tt.resp); got != tt.want {
				t.Errorf("NextDepth(%d) = %d, want %d", tt.depth, got, tt.want)
			}
		})
	}
}

func TestSignalsFor(t *testing.T) {
	tests := []struct {
		name string
		req  *protocol.Request
		want NavSignals
	}{
		{
			name: "plain item click is possible forward",
			req: &protocol.Request{
				Step:     protocol.StepAction,
				Selected: &protocol.Selection{ID: "item-1"},
			},
			want: NavSignals{Forward: true},
		},
		{
			name: "back sentinel is back",
			req: &protocol.Request{
				Step:     protocol.StepAction,
				Selected: &protocol.Selection{ID: protocol.SelectionBack},
			},
			want: NavSignals{Back: true},
		},
		{
			name: "item action is not forward",
			req: &protocol.Request{
				Step:     protocol.StepAction,
				Selected: &protocol.Selection{ID: "item-1"},
				Action:   "open-private",
			},
			want: NavSignals{},
		},
		{
			name: "toolbar action sentinel is not forward",
			req: &protocol.Request{
				Step:     protocol.StepAction,
				Selected: &protocol.Selection{ID: protocol.SelectionPlugin},
				Action:   "refresh",
			},
			want: NavSignals{},
		},
		{
			name: "empty sentinel is not forward",
			req: &protocol.Request{
				Step:     protocol.StepAction,
				Selected: &protocol.Selection{ID: protocol.SelectionEmpty},
			},
			want: NavSignals{},
		},
		{
			name: "no results sentinel is not forward",
			req: &protocol.Request{
				Step:     protocol.StepAction,
				Selected: &protocol.Selection{ID: protocol.SelectionNoResults},
			},
			want: NavSignals{},
		},
		{
			name: "form cancel sentinel is not forward",
			req: &protocol.Request{
				Step:     protocol.StepForm,
				Selected: &protocol.Selection{ID: protocol.SelectionFormCancel},
			},
			want: NavSignals{},
		},
		{
			name: "search step is not forward",
			req: &protocol.Request{
				Step:  protocol.StepSearch,
				Query: "abc",
			},
			want: NavSignals{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SignalsFor(tt.req); got != tt.want {
				t.Errorf("SignalsFor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
