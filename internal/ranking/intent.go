package ranking

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Mode prefixes force an intent regardless of what the rest of the query
// looks like.
const (
	prefixCalc = "="
	prefixRun  = ">"
	prefixWeb  = "?"
)

// Intent row id prefixes. Activation routes on these instead of re-parsing
// the query.
const (
	IntentIDCalc = "calc:"
	IntentIDRun  = "run:"
	IntentIDURL  = "url:"
)

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*(\.[a-zA-Z0-9][a-zA-Z0-9-]*)+(:\d+)?(/\S*)?$`)

// detectIntent inspects the raw query for a non-search meaning: an explicit
// mode prefix, a URL, an arithmetic expression, or a shell command whose
// binary is on PATH. It returns a single promoted result, or nil when the
// query is an ordinary search.
func detectIntent(query string) *Result {
	switch {
	case strings.HasPrefix(query, prefixCalc):
		expr := strings.TrimSpace(query[len(prefixCalc):])
		if expr == "" {
			return nil
		}
		return calcResult(expr)

	case strings.HasPrefix(query, prefixRun):
		cmdline := strings.TrimSpace(query[len(prefixRun):])
		if cmdline == "" {
			return nil
		}
		return runResult(cmdline)

	case strings.HasPrefix(query, prefixWeb):
		term := strings.TrimSpace(query[len(prefixWeb):])
		if term == "" {
			return nil
		}
		// Same source and id as the catch-all web row, so deduplication
		// collapses the two into this promoted one.
		return &Result{
			Source: SourceWeb,
			ID:     query,
			Name:   fmt.Sprintf("Search the web for %q", term),
			Verb:   "Search",
			Query:  term,
		}
	}

	if url, ok := asURL(query); ok {
		return &Result{
			Source: SourceIntent,
			ID:     IntentIDURL + query,
			Name:   query,
			Verb:   "Open in browser",
			Query:  url,
		}
	}

	if looksArithmetic(query) {
		if r := calcResult(query); r != nil {
			return r
		}
	}

	if fields := strings.Fields(query); len(fields) > 0 {
		if _, err := exec.LookPath(fields[0]); err == nil {
			return runResult(query)
		}
	}

	return nil
}

func calcResult(expr string) *Result {
	v, err := evalExpr(expr)
	if err != nil {
		return nil
	}
	value := formatValue(v)
	return &Result{
		Source: SourceIntent,
		ID:     IntentIDCalc + expr,
		Name:   expr + " = " + value,
		Verb:   "Copy",
		Query:  expr,
		Value:  value,
	}
}

func runResult(cmdline string) *Result {
	return &Result{
		Source: SourceIntent,
		ID:     IntentIDRun + cmdline,
		Name:   cmdline,
		Verb:   "Run in shell",
		Query:  cmdline,
	}
}

// asURL recognizes queries that are already openable addresses: explicit
// http(s) schemes, www-prefixed hosts, and bare domains with a path-less or
// pathed form. It returns the normalized URL.
func asURL(query string) (string, bool) {
	if strings.ContainsAny(query, " \t") {
		return "", false
	}
	lower := strings.ToLower(query)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return query, true
	}
	if strings.HasPrefix(lower, "www.") && domainPattern.MatchString(query) {
		return "https://" + query, true
	}
	if domainPattern.MatchString(query) && hasAlphaTLD(query) {
		return "https://" + query, true
	}
	return "", false
}

// hasAlphaTLD rejects dotted numbers like "3.14" that match the domain
// pattern but are not hosts.
func hasAlphaTLD(query string) bool {
	host := query
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	i := strings.LastIndex(host, ".")
	if i < 0 || i == len(host)-1 {
		return false
	}
	tld := host[i+1:]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// looksArithmetic gates the calculator so plain words never hit the parser:
// the query must contain a digit and an operator or parenthesis.
func looksArithmetic(query string) bool {
	hasDigit := strings.ContainsAny(query, "0123456789")
	hasOp := strings.ContainsAny(query, "+-*/%^()")
	return hasDigit && hasOp
}
