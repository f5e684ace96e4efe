// Package extract pulls phone numbers and email addresses out of fetched
// pages, preferring structured anchor data over plain-text regex fallback and
// tolerating the usual obfuscation tricks.
package extract

import (
	"regexp"
	"strings"
)

// Anchor is one link element as reported by the browsing engine.
type Anchor struct {
	Href string
	Text string
}

// Document is the combined extraction input for one page: the raw markup,
// meta tag contents, hidden input values and the anchor list.
type Document struct {
	Text         string
	MetaContents []string
	HiddenValues []string
	Anchors      []Anchor
}

// Result carries at most one phone and one email candidate. When several
// candidates were found for a channel an arbitrary one is chosen; callers
// must only rely on a valid one being present, not on which.
type Result struct {
	Phone string
	Email string
}

var (
	normalEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-()]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// local (at|AT) domain (dot|DOT|punkt) tld, with optional bracket or
	// parenthesis decoration around the separators.
	obfuscatedEmailRe = regexp.MustCompile(
		`(?i)([a-zA-Z0-9._%+\-]+)\s?[(\[]?(?:at)[)\]]?\s?([a-zA-Z0-9.\-]+)\s?[(\[]?(?:dot|punkt)[)\]]?\s?([a-zA-Z]{2,})`)

	phoneLabeledRe = regexp.MustCompile(`(?i)(?:tel|phone|call)[:\s]*(\+?\d{2,4}\(?\d{1,4}\)?\s?\d{3,}[\d\s/\-]*)`)
	phoneGeneralRe = regexp.MustCompile(`\+?\d{2,4}[\s./-]*\(?\d{1,4}\)?[\s./-]*\d{3,}[\d\s./-]*`)

	linkDecryptRe = regexp.MustCompile(`(?i)linkDecrypt\('([^']+)'\)`)
)

// minPhoneDigits rejects cryptic short numeric fragments: a candidate must
// keep at least this many digits after stripping everything else.
const minPhoneDigits = 7

// DecodeShifted reverses a Caesar +1 obfuscation by shifting every rune's
// code point down by one.
func DecodeShifted(encoded string) string {
	var b strings.Builder
	b.Grow(len(encoded))
	for _, r := range encoded {
		b.WriteRune(r - 1)
	}
	return b.String()
}

// PhoneCandidates runs the two "less generous" phone patterns over text and
// returns every candidate that clears the digit floor.
func PhoneCandidates(text string) map[string]struct{} {
	phones := make(map[string]struct{})
	for _, m := range phoneLabeledRe.FindAllStringSubmatch(text, -1) {
		addPhone(phones, m[1])
	}
	for _, m := range phoneGeneralRe.FindAllString(text, -1) {
		addPhone(phones, m)
	}
	return phones
}

// EmailCandidates collects plain addresses plus reassembled obfuscated ones
// ("user (at) domain (dot) tld" becomes user@domain.tld).
func EmailCandidates(text string) map[string]struct{} {
	emails := make(map[string]struct{})
	for _, m := range normalEmailRe.FindAllString(text, -1) {
		emails[strings.TrimSpace(m)] = struct{}{}
	}
	for _, m := range obfuscatedEmailRe.FindAllStringSubmatch(text, -1) {
		emails[m[1]+"@"+m[2]+"."+m[3]] = struct{}{}
	}
	return emails
}

// Contacts runs the full pipeline over one document. Anchor channels run
// first (tel:/mailto: hrefs, linkDecrypt payloads, phone-labeled anchor
// texts), then the regex fallback over the combined text of markup, meta
// contents and hidden input values.
func Contacts(doc Document) Result {
	phones := make(map[string]struct{})
	emails := make(map[string]struct{})

	for _, a := range doc.Anchors {
		href := strings.ToLower(a.Href)
		switch {
		case strings.HasPrefix(href, "tel:"):
			addPhone(phones, a.Href[len("tel:"):])
		case strings.HasPrefix(href, "mailto:"):
			emails[strings.TrimSpace(a.Href[len("mailto:"):])] = struct{}{}
		case strings.Contains(href, "linkdecrypt"):
			for _, m := range linkDecryptRe.FindAllStringSubmatch(a.Href, -1) {
				decoded := DecodeShifted(m[1])
				if strings.HasPrefix(decoded, "mailto:") {
					emails[strings.TrimSpace(decoded[len("mailto:"):])] = struct{}{}
				}
			}
		}

		text := strings.ToLower(a.Text)
		if strings.Contains(text, "telefon:") || strings.Contains(text, "tel.") {
			for p := range PhoneCandidates(a.Text) {
				phones[p] = struct{}{}
			}
		}
	}

	combined := doc.Text
	if len(doc.MetaContents) > 0 {
		combined += "\n" + strings.Join(doc.MetaContents, "\n")
	}
	if len(doc.HiddenValues) > 0 {
		combined += "\n" + strings.Join(doc.HiddenValues, "\n")
	}
	for p := range PhoneCandidates(combined) {
		phones[p] = struct{}{}
	}
	for e := range EmailCandidates(combined) {
		emails[e] = struct{}{}
	}

	return Result{Phone: anyOf(phones), Email: anyOf(emails)}
}

func addPhone(set map[string]struct{}, candidate string) {
	candidate = strings.TrimSpace(candidate)
	if digitCount(candidate) >= minPhoneDigits {
		set[candidate] = struct{}{}
	}
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func anyOf(set map[string]struct{}) string {
	for v := range set {
		return v
	}
	return ""
}
