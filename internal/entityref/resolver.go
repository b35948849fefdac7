// Package entityref rewrites mentions of ERP records ("WO #882", "lead 12")
// into activatable references. Linkify is pure text rewriting; existence is
// checked only when a reference is activated.
package entityref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerified   Status = "verified"
	StatusNotFound   Status = "not_found"
	StatusError      Status = "error"
)

// Reference is one linkified record mention.
type Reference struct {
	Match   string `json:"match"`   // source text that was replaced
	Keyword string `json:"keyword"` // keyword variant, e.g. "WO"
	Model   string `json:"model"`
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	Start   int    `json:"start"` // byte span of the anchor in the output
	End     int    `json:"end"`
	Status  Status `json:"status"`
}

// Kind is one row of the reference table.
type Kind struct {
	Model   string
	Display string
	pattern *regexp.Regexp
}

// newKind builds a matcher from case-insensitive words and case-sensitive
// acronyms. The trailing number is the record id.
func newKind(model, display string, words []string, acronyms []string) Kind {
	alts := make([]string, 0, len(words)+len(acronyms))
	for _, w := range words {
		alts = append(alts, "(?i:"+strings.ReplaceAll(w, " ", `[ \t]*`)+")")
	}
	alts = append(alts, acronyms...)
	re := regexp.MustCompile(`\b(` + strings.Join(alts, "|") + `)[ \t]*#?[ \t]*(\d+)\b`)
	return Kind{Model: model, Display: display, pattern: re}
}

// Kinds is applied in this order. A span produced by an earlier kind is
// never rescanned by a later one.
var Kinds = []Kind{
	newKind("mrp.workorder", "Work Order", []string{"work orders?"}, []string{"WO"}),
	newKind("mrp.production", "Manufacturing Order", []string{"manufacturing orders?"}, []string{"MO"}),
	newKind("crm.lead", "Lead", []string{"leads?", "opportunity", "opportunities"}, nil),
	newKind("sale.order", "Sales Order", []string{"sales? orders?"}, []string{"SO"}),
	newKind("purchase.order", "Purchase Order", []string{"purchase orders?"}, []string{"PO"}),
	newKind("account.move", "Invoice", []string{"invoices?"}, nil),
	newKind("res.partner", "Contact", []string{"contacts?", "partners?"}, nil),
}

// KnownModel reports whether model appears in the reference table.
func KnownModel(model string) bool {
	for _, k := range Kinds {
		if k.Model == model {
			return true
		}
	}
	return false
}

// opaque spans: existing anchors, any other tag, fenced code, directive lines
var opaque = regexp.MustCompile("(?is)<a\\b[^>]*>.*?</a>|<[^>]+>|```.*?```|DATABASE_OPERATION:[^\\n]*")

type segment struct {
	text   string
	linked bool
	ref    *Reference
}

// Linkify replaces record mentions in text with reference anchors.
func Linkify(text string) (string, []Reference) {
	segs := splitOpaque(text)

	for _, kind := range Kinds {
		next := make([]segment, 0, len(segs))
		for _, seg := range segs {
			if seg.linked {
				next = append(next, seg)
				continue
			}
			next = append(next, kind.apply(seg.text)...)
		}
		segs = next
	}

	var (
		b    strings.Builder
		refs []Reference
	)
	for _, seg := range segs {
		if seg.ref != nil {
			r := *seg.ref
			r.Start = b.Len()
			r.End = r.Start + len(seg.text)
			refs = append(refs, r)
		}
		b.WriteString(seg.text)
	}
	return b.String(), refs
}

func splitOpaque(text string) []segment {
	var segs []segment
	last := 0
	for _, loc := range opaque.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segs = append(segs, segment{text: text[last:loc[0]]})
		}
		segs = append(segs, segment{text: text[loc[0]:loc[1]], linked: true})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, segment{text: text[last:]})
	}
	return segs
}

func (k Kind) apply(text string) []segment {
	matches := k.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []segment{{text: text}}
	}

	var out []segment
	last := 0
	for _, m := range matches {
		id, err := strconv.ParseInt(text[m[4]:m[5]], 10, 64)
		if err != nil {
			// overflowing ids stay plain text
			continue
		}
		if m[0] > last {
			out = append(out, segment{text: text[last:m[0]]})
		}
		ref := &Reference{
			Match:   text[m[0]:m[1]],
			Keyword: text[m[2]:m[3]],
			Model:   k.Model,
			ID:      id,
			Label:   fmt.Sprintf("%s #%d", k.Display, id),
			Status:  StatusUnverified,
		}
		out = append(out, segment{text: anchor(ref), linked: true, ref: ref})
		last = m[1]
	}
	if last < len(text) {
		out = append(out, segment{text: text[last:]})
	}
	return out
}

func anchor(r *Reference) string {
	return fmt.Sprintf(`<a class="erp-ref" data-model="%s" data-id="%d">%s</a>`, r.Model, r.ID, r.Label)
}
