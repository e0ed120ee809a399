// Package main provides the bundled emoji picker plugin.
// It indexes a fixed emoji set and copies the selected one to the clipboard.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// request is the envelope the daemon writes to stdin.
type request struct {
	Step     string     `json:"step"`
	Query    string     `json:"query"`
	Selected *selection `json:"selected"`
	Mode     string     `json:"mode"`
}

type selection struct {
	ID string `json:"id"`
}

// response is the envelope written back on stdout.
type response struct {
	Results []result     `json:"results,omitempty"`
	Execute *execute     `json:"execute,omitempty"`
	Message string       `json:"message,omitempty"`
	Type    string       `json:"type,omitempty"`
	Mode    string       `json:"mode,omitempty"`
	Items   []indexEntry `json:"items,omitempty"`
}

type result struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Icon     string      `json:"icon,omitempty"`
	IconType string      `json:"iconType,omitempty"`
	Verb     string      `json:"verb,omitempty"`
	Actions  []rowAction `json:"actions,omitempty"`
}

type rowAction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type execute struct {
	Command  []string `json:"command,omitempty"`
	Notify   string   `json:"notify,omitempty"`
	Name     string   `json:"name,omitempty"`
	Icon     string   `json:"icon,omitempty"`
	IconType string   `json:"iconType,omitempty"`
	Close    bool     `json:"close,omitempty"`
}

type indexEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
	Icon     string   `json:"icon,omitempty"`
	IconType string   `json:"iconType,omitempty"`
	Execute  string   `json:"execute,omitempty"`
}

type emoji struct {
	id       string
	char     string
	name     string
	keywords []string
}

var emojis = []emoji{
	{"grinning", "😀", "Grinning Face", []string{"smile", "happy"}},
	{"joy", "😂", "Tears of Joy", []string{"laugh", "lol", "funny"}},
	{"rofl", "🤣", "Rolling on the Floor Laughing", []string{"laugh", "lol"}},
	{"smile", "😄", "Grinning Face with Smiling Eyes", []string{"happy", "grin"}},
	{"sweat-smile", "😅", "Grinning Face with Sweat", []string{"relief", "phew"}},
	{"wink", "😉", "Winking Face", []string{"flirt"}},
	{"blush", "😊", "Smiling Face with Smiling Eyes", []string{"happy", "shy"}},
	{"heart-eyes", "😍", "Heart Eyes", []string{"love", "crush"}},
	{"smirk", "😏", "Smirking Face", []string{"smug"}},
	{"thinking", "🤔", "Thinking Face", []string{"hmm", "consider"}},
	{"neutral", "😐", "Neutral Face", []string{"meh"}},
	{"rolling-eyes", "🙄", "Face with Rolling Eyes", []string{"annoyed", "whatever"}},
	{"grimacing", "😬", "Grimacing Face", []string{"awkward", "yikes"}},
	{"relieved", "😌", "Relieved Face", []string{"calm"}},
	{"sleeping", "😴", "Sleeping Face", []string{"tired", "zzz"}},
	{"sunglasses", "😎", "Smiling Face with Sunglasses", []string{"cool"}},
	{"nerd", "🤓", "Nerd Face", []string{"glasses", "geek"}},
	{"worried", "😟", "Worried Face", []string{"concerned"}},
	{"cry", "😢", "Crying Face", []string{"sad", "tear"}},
	{"sob", "😭", "Loudly Crying Face", []string{"sad", "bawling"}},
	{"angry", "😠", "Angry Face", []string{"mad"}},
	{"rage", "😡", "Pouting Face", []string{"mad", "furious"}},
	{"scream", "😱", "Face Screaming in Fear", []string{"shocked", "omg"}},
	{"flushed", "😳", "Flushed Face", []string{"embarrassed"}},
	{"pleading", "🥺", "Pleading Face", []string{"puppy eyes", "please"}},
	{"shush", "🤫", "Shushing Face", []string{"quiet", "secret"}},
	{"salute", "🫡", "Saluting Face", []string{"respect", "yes sir"}},
	{"melting", "🫠", "Melting Face", []string{"embarrassed", "hot"}},
	{"skull", "💀", "Skull", []string{"dead", "dying"}},
	{"clown", "🤡", "Clown Face", []string{"joke", "fool"}},
	{"ghost", "👻", "Ghost", []string{"boo", "spooky"}},
	{"alien", "👽", "Alien", []string{"ufo", "space"}},
	{"robot", "🤖", "Robot", []string{"bot", "ai"}},
	{"poop", "💩", "Pile of Poo", []string{"crap"}},
	{"party", "🥳", "Partying Face", []string{"celebrate", "birthday"}},
	{"star-struck", "🤩", "Star-Struck", []string{"wow", "amazed"}},
	{"shrug", "🤷", "Person Shrugging", []string{"dunno", "whatever"}},
	{"facepalm", "🤦", "Person Facepalming", []string{"doh", "smh"}},

	{"thumbs-up", "👍", "Thumbs Up", []string{"ok", "yes", "approve", "+1"}},
	{"thumbs-down", "👎", "Thumbs Down", []string{"no", "disapprove", "-1"}},
	{"ok-hand", "👌", "OK Hand", []string{"perfect"}},
	{"victory", "✌️", "Victory Hand", []string{"peace"}},
	{"crossed-fingers", "🤞", "Crossed Fingers", []string{"luck", "hope"}},
	{"wave", "👋", "Waving Hand", []string{"hello", "bye", "hi"}},
	{"clap", "👏", "Clapping Hands", []string{"applause", "bravo"}},
	{"raised-hands", "🙌", "Raising Hands", []string{"hooray", "praise"}},
	{"handshake", "🤝", "Handshake", []string{"deal", "agreement"}},
	{"pray", "🙏", "Folded Hands", []string{"please", "thanks", "hope"}},
	{"muscle", "💪", "Flexed Biceps", []string{"strong", "gym"}},
	{"point-right", "👉", "Pointing Right", []string{"this"}},
	{"writing", "✍️", "Writing Hand", []string{"note", "sign"}},
	{"pinched", "🤌", "Pinched Fingers", []string{"chef", "italian"}},

	{"heart", "❤️", "Red Heart", []string{"love"}},
	{"broken-heart", "💔", "Broken Heart", []string{"heartbreak", "sad"}},
	{"sparkling-heart", "💖", "Sparkling Heart", []string{"love"}},
	{"fire", "🔥", "Fire", []string{"hot", "lit", "flame"}},
	{"sparkles", "✨", "Sparkles", []string{"shiny", "magic", "new"}},
	{"star", "⭐", "Star", []string{"favorite"}},
	{"boom", "💥", "Collision", []string{"explosion", "bang"}},
	{"hundred", "💯", "Hundred Points", []string{"100", "perfect"}},
	{"check", "✅", "Check Mark Button", []string{"done", "yes", "ok"}},
	{"cross", "❌", "Cross Mark", []string{"no", "wrong", "x"}},
	{"warning", "⚠️", "Warning", []string{"caution", "alert"}},
	{"question", "❓", "Question Mark", []string{"what", "help"}},
	{"exclamation", "❗", "Exclamation Mark", []string{"important", "alert"}},
	{"zap", "⚡", "High Voltage", []string{"lightning", "fast", "electric"}},
	{"rainbow", "🌈", "Rainbow", []string{"pride", "weather"}},
	{"tada", "🎉", "Party Popper", []string{"celebrate", "congrats", "hooray"}},
	{"confetti", "🎊", "Confetti Ball", []string{"celebrate", "party"}},
	{"gift", "🎁", "Wrapped Gift", []string{"present", "birthday"}},
	{"trophy", "🏆", "Trophy", []string{"winner", "award", "champion"}},
	{"gold-medal", "🥇", "Gold Medal", []string{"first", "winner"}},

	{"dog", "🐶", "Dog Face", []string{"puppy", "pet"}},
	{"cat", "🐱", "Cat Face", []string{"kitten", "pet"}},
	{"unicorn", "🦄", "Unicorn", []string{"magic"}},
	{"butterfly", "🦋", "Butterfly", []string{"insect"}},
	{"bee", "🐝", "Honeybee", []string{"insect", "buzz"}},
	{"turtle", "🐢", "Turtle", []string{"slow"}},
	{"snake", "🐍", "Snake", []string{"python"}},
	{"octopus", "🐙", "Octopus", []string{"sea"}},
	{"whale", "🐳", "Spouting Whale", []string{"sea", "ocean"}},
	{"sun", "☀️", "Sun", []string{"sunny", "weather"}},
	{"moon", "🌙", "Crescent Moon", []string{"night"}},
	{"earth", "🌍", "Globe", []string{"world", "planet"}},
	{"seedling", "🌱", "Seedling", []string{"plant", "grow"}},
	{"rose", "🌹", "Rose", []string{"flower", "romance"}},
	{"cherry-blossom", "🌸", "Cherry Blossom", []string{"flower", "spring"}},
	{"water-wave", "🌊", "Water Wave", []string{"ocean", "sea"}},
	{"snowflake", "❄️", "Snowflake", []string{"cold", "winter"}},
	{"umbrella", "☔", "Umbrella with Rain", []string{"weather"}},

	{"pizza", "🍕", "Pizza", []string{"food", "slice"}},
	{"burger", "🍔", "Hamburger", []string{"food"}},
	{"taco", "🌮", "Taco", []string{"food", "mexican"}},
	{"sushi", "🍣", "Sushi", []string{"food", "japanese"}},
	{"cake", "🎂", "Birthday Cake", []string{"dessert", "party"}},
	{"cookie", "🍪", "Cookie", []string{"dessert", "biscuit"}},
	{"coffee", "☕", "Hot Beverage", []string{"tea", "cafe"}},
	{"beer", "🍺", "Beer Mug", []string{"drink", "pub"}},
	{"wine", "🍷", "Wine Glass", []string{"drink"}},
	{"avocado", "🥑", "Avocado", []string{"food"}},

	{"rocket", "🚀", "Rocket", []string{"launch", "ship", "space"}},
	{"airplane", "✈️", "Airplane", []string{"travel", "flight"}},
	{"car", "🚗", "Automobile", []string{"drive", "vehicle"}},
	{"bicycle", "🚲", "Bicycle", []string{"bike", "cycling"}},
	{"house", "🏠", "House", []string{"home"}},
	{"laptop", "💻", "Laptop", []string{"computer", "work"}},
	{"phone", "📱", "Mobile Phone", []string{"call"}},
	{"email", "📧", "E-Mail", []string{"mail", "message"}},
	{"bulb", "💡", "Light Bulb", []string{"idea"}},
	{"lock", "🔒", "Locked", []string{"secure", "private"}},
	{"key", "🔑", "Key", []string{"password", "unlock"}},
	{"wrench", "🔧", "Wrench", []string{"tool", "fix"}},
	{"hammer", "🔨", "Hammer", []string{"tool", "build"}},
	{"gear", "⚙️", "Gear", []string{"settings", "config"}},
	{"magnifier", "🔍", "Magnifying Glass", []string{"search", "find"}},
	{"books", "📚", "Books", []string{"read", "library"}},
	{"memo", "📝", "Memo", []string{"note", "write"}},
	{"calendar", "📅", "Calendar", []string{"date", "schedule"}},
	{"alarm", "⏰", "Alarm Clock", []string{"time", "wake"}},
	{"hourglass", "⏳", "Hourglass", []string{"wait", "time"}},
	{"chart-up", "📈", "Chart Increasing", []string{"growth", "stocks"}},
	{"money", "💰", "Money Bag", []string{"cash", "rich"}},
	{"bug", "🐛", "Bug", []string{"insect", "error"}},
	{"bell", "🔔", "Bell", []string{"notification", "ring"}},
	{"music", "🎵", "Musical Note", []string{"song"}},
	{"mic", "🎤", "Microphone", []string{"sing", "karaoke"}},
	{"game", "🎮", "Video Game", []string{"controller", "play"}},
	{"soccer", "⚽", "Soccer Ball", []string{"football", "sport"}},
	{"basketball", "🏀", "Basketball", []string{"sport"}},
	{"eyes", "👀", "Eyes", []string{"look", "watch"}},
	{"brain", "🧠", "Brain", []string{"smart", "mind"}},
	{"crown", "👑", "Crown", []string{"king", "queen", "royal"}},
}

func main() {
	var req request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		respond(&response{Message: fmt.Sprintf("decode request: %v", err)})
		return
	}

	respond(handle(&req))
}

func respond(resp *response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(req *request) *response {
	switch req.Step {
	case "index":
		return indexResponse(req.Mode)
	case "initial", "search":
		return listResponse(req.Query)
	case "action":
		return actionResponse(req)
	}
	return &response{Message: "unsupported step: " + req.Step}
}

// indexResponse publishes the whole emoji set. The set is fixed, so
// incremental requests get every item as an in-place update too.
func indexResponse(mode string) *response {
	items := make([]indexEntry, 0, len(emojis))
	for _, e := range emojis {
		items = append(items, indexEntry{
			ID:       e.id,
			Name:     e.name,
			Keywords: append([]string{"emoji"}, e.keywords...),
			Icon:     e.char,
			IconType: "emoji",
			Execute:  copyCommand(e.char),
		})
	}
	return &response{Type: "index", Mode: mode, Items: items}
}

// listResponse renders the set filtered by the typed query.
func listResponse(query string) *response {
	q := strings.ToLower(strings.TrimSpace(query))

	rows := make([]result, 0, len(emojis))
	for _, e := range emojis {
		if q != "" && !matches(e, q) {
			continue
		}
		rows = append(rows, result{
			ID:       e.id,
			Name:     e.name,
			Icon:     e.char,
			IconType: "emoji",
			Verb:     "Copy",
			Actions:  []rowAction{{ID: "copy", Name: "Copy"}},
		})
	}

	if len(rows) == 0 {
		rows = append(rows, result{ID: "__no_results__", Name: "No emoji match"})
	}

	return &response{Results: rows}
}

// actionResponse copies the selected emoji. The per-row copy action and a
// plain activation behave the same.
func actionResponse(req *request) *response {
	if req.Selected == nil {
		return &response{Message: "no selection"}
	}

	switch req.Selected.ID {
	case "__back__":
		return listResponse("")
	case "__empty__", "__no_results__":
		return listResponse(req.Query)
	}

	e, ok := find(req.Selected.ID)
	if !ok {
		return &response{Message: "unknown emoji: " + req.Selected.ID}
	}

	return &response{Execute: &execute{
		Command:  []string{"sh", "-c", copyCommand(e.char)},
		Notify:   "Copied " + e.char,
		Name:     e.name,
		Icon:     e.char,
		IconType: "emoji",
		Close:    true,
	}}
}

func find(id string) (emoji, bool) {
	for _, e := range emojis {
		if e.id == id {
			return e, true
		}
	}
	return emoji{}, false
}

func matches(e emoji, q string) bool {
	if strings.Contains(strings.ToLower(e.name), q) || strings.Contains(e.id, q) {
		return true
	}
	for _, k := range e.keywords {
		if strings.Contains(k, q) {
			return true
		}
	}
	return false
}

// copyCommand builds a shell line that puts text on the clipboard.
func copyCommand(text string) string {
	quoted := "'" + strings.ReplaceAll(text, "'", `'\''`) + "'"
	if runtime.GOOS == "darwin" {
		return "printf %s " + quoted + " | pbcopy"
	}
	return "printf %s " + quoted + " | wl-copy 2>/dev/null || printf %s " + quoted + " | xclip -selection clipboard"
}
