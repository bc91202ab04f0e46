package search

import "strings"

// CategoryKeywords lists the query keywords that signal a category. A keyword
// hits an entry when it equals the entry or starts with it.
type CategoryKeywords struct {
	Category string
	Keywords []string
}

// DefaultCategories is the built-in category table, in detection order.
var DefaultCategories = []CategoryKeywords{
	{"database", []string{"database", "sql", "query", "postgres", "mysql", "sqlite", "mongo", "connection", "migration", "schema", "transaction", "deadlock"}},
	{"react-hooks", []string{"react", "hook", "useeffect", "usestate", "usememo", "usecallback", "useref", "rerender"}},
	{"api", []string{"api", "endpoint", "request", "response", "http", "restful", "graphql", "fetch", "cors", "status"}},
	{"performance", []string{"perf", "slow", "latency", "memory", "leak", "cpu", "timeout", "optimi", "bottleneck"}},
	{"authentication", []string{"auth", "login", "logout", "token", "jwt", "session", "oauth", "password", "credential", "permission"}},
	{"validation", []string{"valid", "invalid", "form", "input", "required", "sanitiz", "format"}},
	{"configuration", []string{"config", "env", "setting", "variable", "dotenv", "flag"}},
	{"dependency", []string{"depend", "package", "version", "npm", "yarn", "module", "import", "upgrade", "install"}},
	{"concurrency", []string{"race", "concurren", "mutex", "lock", "goroutine", "async", "await", "promise"}},
	{"build", []string{"build", "compile", "webpack", "vite", "bundle", "typescript", "lint"}},
}

// DetectCategories returns the categories hit by any keyword, in table order.
func DetectCategories(table []CategoryKeywords, kws []string) []string {
	var hits []string
	for _, entry := range table {
		if categoryHit(entry.Keywords, kws) {
			hits = append(hits, entry.Category)
		}
	}
	return hits
}

func categoryHit(entries, kws []string) bool {
	for _, kw := range kws {
		for _, e := range entries {
			if kw == e || strings.HasPrefix(kw, e) {
				return true
			}
		}
	}
	return false
}
