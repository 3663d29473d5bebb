// Package relevance decides whether a post concerns the tracked project.
package relevance

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

// Config lists the terms and accounts that make a post relevant.
// Accounts may be handles (with or without '@') or platform ids.
type Config struct {
	Keywords []string
	Hashtags []string
	Accounts []string
}

// Classifier is a deterministic keyword and mention matcher. It holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	terms    []string
	accounts map[string]struct{}
}

// fold applies Unicode case folding. A Caser is stateful, so each call gets its own.
func fold(s string) string { return cases.Fold().String(s) }

// New builds a Classifier from cfg. Empty entries are ignored.
func New(cfg Config) *Classifier {
	c := &Classifier{
		accounts: make(map[string]struct{}, len(cfg.Accounts)),
	}
	for _, t := range append(append([]string{}, cfg.Keywords...), cfg.Hashtags...) {
		if t = strings.TrimSpace(t); t != "" {
			c.terms = append(c.terms, fold(t))
		}
	}
	for _, a := range cfg.Accounts {
		if a = model.NormalizeHandle(a); a != "" {
			c.accounts[fold(a)] = struct{}{}
		}
	}
	return c
}

// IsRelevant reports whether text contains a configured term, a mention names a
// tracked account, or the post reshares or quotes a tracked account. Replies
// alone do not count.
func (c *Classifier) IsRelevant(text string, mentions []string, refs []model.Reference) bool {
	if text != "" && len(c.terms) > 0 {
		folded := fold(text)
		for _, t := range c.terms {
			if strings.Contains(folded, t) {
				return true
			}
		}
	}
	for _, m := range mentions {
		if c.tracked(m) {
			return true
		}
	}
	for _, r := range refs {
		if r.Kind != model.RefReshare && r.Kind != model.RefQuote {
			continue
		}
		if c.tracked(r.AuthorHandle) || c.tracked(r.AuthorID) {
			return true
		}
	}
	return false
}

// Tracked reports whether account is one of the configured accounts.
func (c *Classifier) Tracked(account string) bool { return c.tracked(account) }

func (c *Classifier) tracked(account string) bool {
	account = model.NormalizeHandle(account)
	if account == "" {
		return false
	}
	_, ok := c.accounts[fold(account)]
	return ok
}
