package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeShifted(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r + 1)
	}
	return b.String()
}

func TestDecodeShiftedRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"mailto:info@example.org", "", "Tel: +49 30 123456", "äöü"} {
		require.Equal(t, s, DecodeShifted(encodeShifted(s)))
	}
}

func TestPhoneCandidatesDigitFloor(t *testing.T) {
	t.Parallel()

	require.Empty(t, PhoneCandidates("call 12 34"))

	phones := PhoneCandidates("Tel: +49 (0) 1234 567890")
	require.NotEmpty(t, phones)
	for p := range phones {
		require.Contains(t, p, "1234")
	}
}

func TestEmailCandidates(t *testing.T) {
	t.Parallel()

	emails := EmailCandidates("write info@example.org or sales (at) example (dot) com today")
	require.Contains(t, emails, "info@example.org")
	require.Contains(t, emails, "sales@example.com")
}

func TestEmailCandidatesPunktVariant(t *testing.T) {
	t.Parallel()

	emails := EmailCandidates("kontakt [at] firma [punkt] de")
	require.Contains(t, emails, "kontakt@firma.de")
}

func TestContactsCombinedTextExample(t *testing.T) {
	t.Parallel()

	doc := Document{
		Text: "Telefon: +49 (0) 1234 567890\nMail: info@example.org\nsales (at) example (dot) com",
	}
	res := Contacts(doc)
	require.Contains(t, res.Phone, "1234")
	require.Contains(t, []string{"info@example.org", "sales@example.com"}, res.Email)
}

func TestContactsAnchorChannels(t *testing.T) {
	t.Parallel()

	doc := Document{
		Anchors: []Anchor{
			{Href: "tel:+49 30 9876543"},
			{Href: "mailto:office@firma.de"},
		},
	}
	res := Contacts(doc)
	require.Equal(t, "+49 30 9876543", res.Phone)
	require.Equal(t, "office@firma.de", res.Email)
}

func TestContactsShortTelAnchorRejected(t *testing.T) {
	t.Parallel()

	doc := Document{Anchors: []Anchor{{Href: "tel:110"}}}
	require.Empty(t, Contacts(doc).Phone)
}

func TestContactsLinkDecrypt(t *testing.T) {
	t.Parallel()

	payload := encodeShifted("mailto:hidden@firma.de")
	doc := Document{
		Anchors: []Anchor{{Href: "javascript:linkDecrypt('" + payload + "')"}},
	}
	require.Equal(t, "hidden@firma.de", Contacts(doc).Email)
}

func TestContactsPhoneLabeledAnchorText(t *testing.T) {
	t.Parallel()

	doc := Document{
		Anchors: []Anchor{{Href: "#contact", Text: "Tel. 089 / 123 45 67"}},
	}
	res := Contacts(doc)
	require.NotEmpty(t, res.Phone)
	require.Contains(t, res.Phone, "123")
}

func TestContactsMetaAndHiddenInputs(t *testing.T) {
	t.Parallel()

	doc := Document{
		MetaContents: []string{"Reach us at meta@firma.de"},
		HiddenValues: []string{"Phone: 030 5550 1234"},
	}
	res := Contacts(doc)
	require.Equal(t, "meta@firma.de", res.Email)
	require.NotEmpty(t, res.Phone)
}
