package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/ayusman/kathak/internal/history"
	"github.com/ayusman/kathak/internal/logx"
	"github.com/ayusman/kathak/internal/plugin"
	"github.com/ayusman/kathak/internal/protocol"
	"github.com/ayusman/kathak/internal/ranking"
)

// ErrNoSession is returned for operations that need an active plugin session.
var ErrNoSession = errors.New("no active plugin session")

// webSearchURL is where the catch-all web rows send the query.
const webSearchURL = "https://duckduckgo.com/?q="

// Query updates the current query. With a plugin session active it is
// forwarded as a search step; otherwise the corpus is ranked directly.
func (a *App) Query(ctx context.Context, query string) View {
	a.mu.Lock()
	a.view.Query = query
	a.mu.Unlock()

	if sess, ok := a.sessions.Active(); ok {
		req := &protocol.Request{
			Step:    protocol.StepSearch,
			Session: sess.Token,
			Query:   query,
			Context: sess.Context,
		}
		return a.roundTrip(ctx, sess, req, false)
	}

	results := a.engine.Search(query, a.desktopContext())

	a.mu.Lock()
	if a.view.Query != query || a.view.Session != nil {
		// A newer keystroke or an opened session got here first.
		v := a.view
		a.mu.Unlock()
		return v
	}
	a.view.Results = results
	a.view.Error = ""
	v := a.bumpLocked()
	a.mu.Unlock()

	a.emit(Event{Type: EventView, View: &v})
	return v
}

// Activate runs the user's selection. Inside a plugin session the selection
// is reported to the handler; at the top level it is routed by the row's
// source.
func (a *App) Activate(ctx context.Context, act Activation) (View, error) {
	if act.Source == "" {
		sess, ok := a.sessions.Active()
		if !ok {
			return a.View(), ErrNoSession
		}
		return a.activateInSession(ctx, sess, act), nil
	}

	switch act.Source {
	case ranking.SourceIndexed:
		return a.activateIndexed(ctx, act)
	case ranking.SourcePlugin:
		return a.OpenPlugin(ctx, act.PluginID, act.Query)
	case ranking.SourceHistory, ranking.SourceSuggestion:
		return a.activateRecalled(ctx, act)
	case ranking.SourceIntent:
		return a.activateIntent(act)
	case ranking.SourceWeb:
		return a.activateWeb(act)
	}
	return a.View(), fmt.Errorf("activate: unknown source %q", act.Source)
}

// OpenPlugin starts an interactive session with a plugin. A non-empty query
// is handed over with the initial step, which is how match-pattern rows pass
// the typed text along.
func (a *App) OpenPlugin(ctx context.Context, pluginID, query string) (View, error) {
	p, err := a.registry.Get(pluginID)
	if err != nil {
		return a.View(), err
	}

	term := a.currentQuery()
	a.closeActiveSession()
	sess := a.sessions.Start(p.ID)

	a.recordUsage(history.Usage{
		Type:       history.KindWorkflow,
		Name:       p.Manifest.Name,
		Key:        p.ID,
		SearchTerm: term,
		PluginID:   p.ID,
		Icon:       p.Manifest.Icon,
	})

	a.seedSessionView(p)
	req := &protocol.Request{
		Step:    protocol.StepInitial,
		Session: sess.Token,
		Query:   query,
	}
	return a.roundTrip(ctx, sess, req, false), nil
}

// GoBack steps the active session up one level; at the top it closes the
// session instead of sending a request.
func (a *App) GoBack(ctx context.Context) View {
	sess, ok := a.sessions.Active()
	if !ok {
		return a.View()
	}
	if sess.Depth == 0 {
		return a.resetToIdle()
	}

	req := &protocol.Request{
		Step:     protocol.StepAction,
		Session:  sess.Token,
		Selected: &protocol.Selection{ID: protocol.SelectionBack},
		Context:  sess.Context,
	}
	return a.roundTrip(ctx, sess, req, false)
}

// HandleEscape applies one Escape press: a GoBack, except a second press
// within the double-escape window force-closes the session outright.
func (a *App) HandleEscape(ctx context.Context) View {
	a.mu.Lock()
	now := a.now()
	double := !a.lastEscape.IsZero() && now.Sub(a.lastEscape) <= doubleEscapeWindow
	a.lastEscape = now
	a.mu.Unlock()

	if _, ok := a.sessions.Active(); !ok {
		return a.resetToIdle()
	}
	if double {
		return a.resetToIdle()
	}
	return a.GoBack(ctx)
}

// SubmitForm sends collected form data to the active session.
func (a *App) SubmitForm(ctx context.Context, data json.RawMessage) (View, error) {
	sess, ok := a.sessions.Active()
	if !ok {
		return a.View(), ErrNoSession
	}

	req := &protocol.Request{
		Step:     protocol.StepForm,
		Session:  sess.Token,
		FormData: data,
		Context:  sess.Context,
	}
	return a.roundTrip(ctx, sess, req, false), nil
}

// Replay re-runs a recorded plugin interaction under a detached session
// token, fire-and-forget. Only execute side effects of the response are
// honored; the view never changes.
func (a *App) Replay(key string) error {
	item, err := a.store.Get(history.KindWorkflowExecution, key)
	if err != nil {
		return fmt.Errorf("replay %q: %w", key, err)
	}
	if item.PluginID == "" {
		return fmt.Errorf("replay %q: no plugin recorded", key)
	}
	p, err := a.registry.Get(item.PluginID)
	if err != nil {
		return fmt.Errorf("replay %q: %w", key, err)
	}

	sess := a.sessions.StartReplay(p.ID)
	req := &protocol.Request{
		Step:    protocol.StepAction,
		Session: sess.Token,
		Selected: &protocol.Selection{
			ID:         strings.TrimPrefix(item.Key, item.PluginID+"/"),
			Name:       item.Name,
			EntryPoint: item.EntryPoint,
		},
		Replay: true,
	}

	go func() {
		resp, err := a.executor.Execute(a.runContext(), p, req)
		if err != nil {
			logx.Log.Warn().Err(err).Str("plugin", p.ID).Msg("replay failed")
			return
		}
		if resp.Kind() == protocol.KindExecute {
			a.handleExecute(0, sess, resp, true)
		}
	}()
	return nil
}

// activateInSession reports a displayed row back to the session's handler.
// Sentinel rows short-circuit: back navigates, placeholders do nothing.
func (a *App) activateInSession(ctx context.Context, sess plugin.Session, act Activation) View {
	switch act.ID {
	case protocol.SelectionBack:
		return a.GoBack(ctx)
	case protocol.SelectionEmpty, protocol.SelectionNoResults:
		return a.View()
	}

	if !protocol.IsSentinel(act.ID) {
		a.sessions.SetLastSelected(sess.Token, act.ID)
		if cur, ok := a.sessions.Active(); ok && cur.Token == sess.Token {
			sess = cur
		}
	}

	req := &protocol.Request{
		Step:    protocol.StepAction,
		Session: sess.Token,
		Selected: &protocol.Selection{
			ID:         act.ID,
			Name:       act.Name,
			EntryPoint: act.EntryPoint,
			Execute:    act.Execute,
		},
		Action:  act.Action,
		Context: sess.Context,
	}
	return a.roundTrip(ctx, sess, req, false)
}

// activateIndexed launches an indexed item: directly when it carries an
// execute command, otherwise by handing the selection to its plugin under a
// fresh session.
func (a *App) activateIndexed(ctx context.Context, act Activation) (View, error) {
	entry, ok := a.findIndexEntry(act.PluginID, act.ID)
	if !ok {
		return a.View(), fmt.Errorf("activate: item %s/%s is not indexed", act.PluginID, act.ID)
	}

	term := a.currentQuery()

	if act.Action == "" && entry.Execute != "" {
		if err := launch("sh", "-c", entry.Execute); err != nil {
			return a.View(), err
		}
		a.recordUsage(history.Usage{
			Type:       history.KindApp,
			Name:       entry.Name,
			SearchTerm: term,
			Command:    entry.Execute,
			EntryPoint: entry.EntryPoint,
			Icon:       entry.Icon,
			IconType:   entry.IconType,
			PluginID:   act.PluginID,
		})
		return a.resetToIdle(), nil
	}

	p, err := a.registry.Get(act.PluginID)
	if err != nil {
		return a.View(), err
	}

	a.closeActiveSession()
	sess := a.sessions.Start(p.ID)
	a.sessions.SetLastSelected(sess.Token, entry.ID)
	if cur, ok := a.sessions.Active(); ok && cur.Token == sess.Token {
		sess = cur
	}

	a.recordUsage(history.Usage{
		Type:       history.KindApp,
		Name:       entry.Name,
		SearchTerm: term,
		EntryPoint: entry.EntryPoint,
		Icon:       entry.Icon,
		IconType:   entry.IconType,
		PluginID:   p.ID,
	})

	a.seedSessionView(p)
	req := &protocol.Request{
		Step:    protocol.StepAction,
		Session: sess.Token,
		Selected: &protocol.Selection{
			ID:         entry.ID,
			Name:       entry.Name,
			EntryPoint: entry.EntryPoint,
			Execute:    entry.Execute,
		},
		Action: act.Action,
	}
	return a.roundTrip(ctx, sess, req, false), nil
}

// activateRecalled reruns a zero-query row. Rows keep their underlying
// candidate identity: indexed items run through the indexed path, plugin
// rows reopen the plugin.
func (a *App) activateRecalled(ctx context.Context, act Activation) (View, error) {
	if _, ok := a.findIndexEntry(act.PluginID, act.ID); ok {
		return a.activateIndexed(ctx, act)
	}
	if act.PluginID != "" {
		return a.OpenPlugin(ctx, act.PluginID, "")
	}
	return a.View(), fmt.Errorf("activate: %q is gone from the corpus", act.ID)
}

// activateIntent carries out a promoted intent row. Calculator rows have
// nothing to run; the renderer copies the value.
func (a *App) activateIntent(act Activation) (View, error) {
	switch {
	case strings.HasPrefix(act.ID, ranking.IntentIDURL):
		if err := openURL(act.Query); err != nil {
			return a.View(), err
		}
		a.recordUsage(history.Usage{
			Type:       history.KindWebSearch,
			Name:       act.Query,
			SearchTerm: a.currentQuery(),
		})
		return a.resetToIdle(), nil

	case strings.HasPrefix(act.ID, ranking.IntentIDRun):
		if err := launch("sh", "-c", act.Query); err != nil {
			return a.View(), err
		}
		name := act.Query
		if fields := strings.Fields(act.Query); len(fields) > 0 {
			name = fields[0]
		}
		a.recordUsage(history.Usage{
			Type:       history.KindApp,
			Name:       name,
			Command:    act.Query,
			SearchTerm: a.currentQuery(),
		})
		return a.resetToIdle(), nil
	}
	return a.View(), nil
}

// activateWeb opens the web search for the row's query.
func (a *App) activateWeb(act Activation) (View, error) {
	term := act.Query
	if term == "" {
		term = act.ID
	}
	if err := openURL(webSearchURL + url.QueryEscape(term)); err != nil {
		return a.View(), err
	}
	a.recordUsage(history.Usage{
		Type:       history.KindWebSearch,
		Name:       term,
		SearchTerm: term,
	})
	return a.resetToIdle(), nil
}

// roundTrip issues one request against the session's plugin, blocks for the
// response, and folds the outcome into the view. Quiet round trips (polls)
// never touch the busy flag.
func (a *App) roundTrip(ctx context.Context, sess plugin.Session, req *protocol.Request, quiet bool) View {
	p, err := a.registry.Get(sess.PluginID)
	if err != nil {
		// The plugin disappeared in a rescan while its session was open.
		return a.resetToIdle()
	}

	ticket := a.beginRequest(quiet)
	resp, rerr := a.executor.Execute(ctx, p, req)
	return a.finishRequest(ticket, p, sess, plugin.SignalsFor(req), resp, rerr, quiet)
}

// beginRequest allocates the ticket that orders this request's outcome
// against concurrent ones, and raises the busy flag for interactive calls.
func (a *App) beginRequest(quiet bool) uint64 {
	a.mu.Lock()
	a.issued++
	ticket := a.issued
	if quiet {
		a.mu.Unlock()
		return ticket
	}
	a.view.Busy = true
	a.view.Error = ""
	v := a.bumpLocked()
	a.mu.Unlock()

	a.emit(Event{Type: EventView, View: &v})
	return ticket
}

func (a *App) finishRequest(ticket uint64, p *plugin.Plugin, sess plugin.Session, sig plugin.NavSignals, resp *protocol.Response, err error, quiet bool) View {
	if err != nil {
		if errors.Is(err, plugin.ErrSuperseded) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// A newer request owns the view, or the caller went away.
			return a.View()
		}
		return a.applyError(ticket, err.Error(), quiet)
	}
	return a.applyResponse(ticket, p, sess, sig, resp, quiet)
}

// applyError surfaces a failed invocation: the displayed state is kept, only
// the error field and busy flag change.
func (a *App) applyError(ticket uint64, msg string, quiet bool) View {
	a.mu.Lock()
	if ticket < a.applied {
		v := a.view
		a.mu.Unlock()
		return v
	}
	a.applied = ticket
	if !quiet {
		a.view.Busy = false
	}
	a.view.Error = msg
	v := a.bumpLocked()
	a.mu.Unlock()

	// Polling continues through failed invocations while the session lives.
	if cur, ok := a.sessions.Active(); ok {
		if p, err := a.registry.Get(cur.PluginID); err == nil {
			a.resetPoll(cur.Token, effectivePoll(cur, p))
		}
	}

	a.emit(Event{Type: EventView, View: &v})
	return v
}

// applyResponse folds a successful response into session state and the view.
// The ticket gate runs before the session mutation so an invocation outrun
// by a newer one cannot move navigation depth out of order.
func (a *App) applyResponse(ticket uint64, p *plugin.Plugin, sess plugin.Session, sig plugin.NavSignals, resp *protocol.Response, quiet bool) View {
	if resp.Kind() == protocol.KindExecute {
		return a.handleExecute(ticket, sess, resp, quiet)
	}

	a.mu.Lock()
	if ticket < a.applied {
		v := a.view
		a.mu.Unlock()
		return v
	}
	a.applied = ticket

	cur, ok := a.sessions.ApplyResponse(sess.Token, sig, resp)
	if !ok {
		// The session closed or was replaced while the handler ran.
		v := a.view
		a.mu.Unlock()
		return v
	}

	if !quiet {
		a.view.Busy = false
	}
	if resp.Kind() == protocol.KindError {
		a.view.Error = resp.Message
	} else {
		a.view.Error = ""
		switch resp.Kind() {
		case protocol.KindResults, protocol.KindCard, protocol.KindForm,
			protocol.KindPrompt, protocol.KindImageBrowser:
			a.view.Session = buildSessionView(cur, resp, a.view.Session)
		}
		if resp.ClearInput {
			a.view.Query = ""
		}
	}
	v := a.bumpLocked()
	a.mu.Unlock()

	a.resetPoll(cur.Token, effectivePoll(cur, p))
	a.emit(Event{Type: EventView, View: &v})
	return v
}

// handleExecute carries out an execute payload: run the command detached,
// surface the notification, record the interaction for replay, and close
// the session when asked. Replay outcomes skip the view entirely.
func (a *App) handleExecute(ticket uint64, sess plugin.Session, resp *protocol.Response, quiet bool) View {
	ex := resp.Execute

	// Pick up state the session accumulated after the snapshot was taken,
	// in particular the selection that triggered this execute.
	if cur, ok := a.sessions.Active(); ok && cur.Token == sess.Token {
		sess = cur
	}

	if len(ex.Command) > 0 {
		if err := launch(ex.Command...); err != nil {
			logx.Log.Warn().Err(err).Str("plugin", sess.PluginID).Msg("execute command failed")
		}
	}
	if ex.Notify != "" {
		a.emit(Event{Type: EventNotify, Message: ex.Notify})
	}
	if ex.Name != "" {
		sel := sess.LastSelected
		if sel == "" {
			sel = ex.Name
		}
		a.recordUsage(history.Usage{
			Type:       history.KindWorkflowExecution,
			Name:       ex.Name,
			Key:        sess.PluginID + "/" + sel,
			PluginID:   sess.PluginID,
			Command:    strings.Join(ex.Command, " "),
			EntryPoint: ex.EntryPoint,
			Icon:       ex.Icon,
			IconType:   ex.IconType,
			Thumbnail:  ex.Thumbnail,
		})
	}

	if sess.Replay || !a.sessions.Validate(sess.Token) {
		return a.View()
	}
	if ex.Close {
		return a.resetToIdle()
	}

	a.mu.Lock()
	if ticket >= a.applied {
		a.applied = ticket
		if !quiet {
			a.view.Busy = false
		}
		a.view.Error = ""
	}
	v := a.bumpLocked()
	a.mu.Unlock()

	a.emit(Event{Type: EventView, View: &v})
	return v
}

// resetToIdle closes any active session and returns the launcher to the
// zero-query view with an empty input.
func (a *App) resetToIdle() View {
	a.closeActiveSession()
	results := a.engine.Search("", a.desktopContext())

	a.mu.Lock()
	a.view.Query = ""
	a.view.Session = nil
	a.view.Results = results
	a.view.Busy = false
	a.view.Error = ""
	v := a.bumpLocked()
	a.mu.Unlock()

	a.emit(Event{Type: EventView, View: &v})
	return v
}

// closeActiveSession tears down the active session's machinery: the
// in-flight handler is killed and the poll timer stopped. Replay
// invocations are untracked and keep running.
func (a *App) closeActiveSession() {
	sess, ok := a.sessions.Close()
	if !ok {
		return
	}
	a.executor.Cancel(sess.Token)
	a.stopPoll()
}

// seedSessionView puts an empty session frame on screen before the first
// response lands, carrying the manifest's initial prompt as placeholder.
// The input clears so the text that found the plugin does not leak into it.
func (a *App) seedSessionView(p *plugin.Plugin) {
	sv := &SessionView{PluginID: p.ID}
	if step, ok := p.Manifest.Steps["initial"]; ok {
		sv.Placeholder = step.Prompt
	}

	a.mu.Lock()
	a.view.Session = sv
	a.view.Query = ""
	a.mu.Unlock()
}

// buildSessionView folds one payload response into the renderer-facing
// session state. Hints the response leaves unset keep their previous
// values, so a results refresh does not wipe the placeholder set on open.
func buildSessionView(sess plugin.Session, resp *protocol.Response, prev *SessionView) *SessionView {
	sv := &SessionView{
		PluginID:  sess.PluginID,
		Depth:     sess.Depth,
		InputMode: sess.InputMode,
	}
	if prev != nil && prev.PluginID == sess.PluginID {
		sv.Placeholder = prev.Placeholder
		sv.PluginActions = prev.PluginActions
	}

	switch resp.Kind() {
	case protocol.KindResults:
		sv.Kind = protocol.KindResults
		sv.Results = resp.Results
	case protocol.KindCard:
		sv.Kind = protocol.KindCard
		sv.Card = resp.Card
	case protocol.KindForm:
		sv.Kind = protocol.KindForm
		sv.Form = resp.Form
	case protocol.KindPrompt:
		// A prompt may carry a card alongside it.
		sv.Kind = protocol.KindPrompt
		sv.Prompt = resp.Prompt
		sv.Card = resp.Card
	case protocol.KindImageBrowser:
		sv.Kind = protocol.KindImageBrowser
		sv.ImageBrowser = resp.ImageBrowser
	}

	if resp.Placeholder != "" {
		sv.Placeholder = resp.Placeholder
	}
	if resp.PluginActions != nil {
		sv.PluginActions = resp.PluginActions
	}
	sv.ClearInput = resp.ClearInput
	return sv
}

// resetPoll replaces the session poll timer to match the given interval in
// milliseconds. Timers are replaced, never stacked; a zero interval stops
// polling.
func (a *App) resetPoll(token string, intervalMS int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poll != nil {
		a.poll.Stop()
		a.poll = nil
	}
	if intervalMS <= 0 {
		return
	}
	a.poll = time.AfterFunc(time.Duration(intervalMS)*time.Millisecond, func() {
		a.pollTick(token)
	})
}

func (a *App) stopPoll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poll != nil {
		a.poll.Stop()
		a.poll = nil
	}
}

// pollTick fires one poll step for the session holding token. Interactive
// traffic wins: a busy view skips this tick and re-arms the timer.
func (a *App) pollTick(token string) {
	sess, ok := a.sessions.Active()
	if !ok || sess.Token != token {
		return
	}
	p, err := a.registry.Get(sess.PluginID)
	if err != nil {
		return
	}

	a.mu.Lock()
	busy := a.view.Busy
	a.mu.Unlock()
	if busy {
		a.resetPoll(token, effectivePoll(sess, p))
		return
	}

	req := &protocol.Request{
		Step:    protocol.StepPoll,
		Session: sess.Token,
		Query:   a.currentQuery(),
		Context: sess.Context,
	}
	a.roundTrip(a.runContext(), sess, req, true)
}

// effectivePoll is the poll cadence for a session in milliseconds: the last
// pollInterval the plugin sent, or the manifest default.
func effectivePoll(sess plugin.Session, p *plugin.Plugin) int {
	if sess.PollInterval > 0 {
		return sess.PollInterval
	}
	return p.Manifest.Poll
}

func (a *App) currentQuery() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view.Query
}

func (a *App) findIndexEntry(pluginID, id string) (protocol.IndexEntry, bool) {
	for _, it := range a.indexes.Items(pluginID) {
		if it.ID == id {
			return it, true
		}
	}
	return protocol.IndexEntry{}, false
}

// launch starts a command detached from the daemon and reaps it in the
// background so the child never zombies.
func launch(argv ...string) error {
	if len(argv) == 0 || argv[0] == "" {
		return errors.New("launch: empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", argv[0], err)
	}
	go cmd.Wait()
	return nil
}

// openURL hands a URL to the desktop's default opener.
func openURL(u string) error {
	switch runtime.GOOS {
	case "darwin":
		return launch("open", u)
	case "windows":
		return launch("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		return launch("xdg-open", u)
	}
}
