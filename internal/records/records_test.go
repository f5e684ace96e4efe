package records

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadAllWithHeader(t *testing.T) {
	t.Parallel()

	in := "name;street;plz;city\nAcme Widgets;Hauptstraße 5;80331;München\nBeta GmbH;Ringweg 2;10115;Berlin\n"
	cols, recs, err := ReadAll(strings.NewReader(in), ';', nil)
	require.NoError(t, err)
	require.Equal(t, []string{"name", "street", "plz", "city"}, cols)
	require.Len(t, recs, 2)
	require.Equal(t, "Acme Widgets", recs[0]["name"])
	require.Equal(t, "10115", recs[1]["plz"])
}

func TestReadAllHeaderless(t *testing.T) {
	t.Parallel()

	in := "Acme Widgets,Hauptstraße 5,80331,München\n"
	cols, recs, err := ReadAll(strings.NewReader(in), ',', []string{"name", "street", "plz", "city"})
	require.NoError(t, err)
	require.Equal(t, []string{"name", "street", "plz", "city"}, cols)
	require.Len(t, recs, 1)
	require.Equal(t, "München", recs[0]["city"])
}

func TestReadAllHeaderlessFieldCountMismatch(t *testing.T) {
	t.Parallel()

	in := "Acme Widgets,Hauptstraße 5\n"
	_, _, err := ReadAll(strings.NewReader(in), ',', []string{"name", "street", "plz"})
	require.Error(t, err)
}

func TestReadAllRejectsBadColumns(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"empty list":     {},
		"blank name":     {"name", ""},
		"duplicate name": {"name", "name"},
	}
	for name, cols := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ReadAll(strings.NewReader("a,b\n"), ',', cols)
			require.Error(t, err)
		})
	}
}

func TestReadAllEmptyInputNeedsHeader(t *testing.T) {
	t.Parallel()

	_, _, err := ReadAll(strings.NewReader(""), ',', nil)
	require.Error(t, err)
}

func TestWriterRewritesCompletedRowsInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	cols := []string{"name", "city"}
	recs := []Record{
		{"name": "Acme", "city": "München"},
		{"name": "Beta", "city": "Berlin"},
		{"name": "Gamma", "city": "Hamburg"},
	}
	w := NewWriter(out, ';', cols, recs)

	// Completion order 2, 0: the file must still list row 0 first.
	require.NoError(t, w.SetResult(2, "", "", ""))
	require.NoError(t, w.SetResult(0, "https://acme.de/kontakt", "+49 89 1", "info@acme.de"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, []string{
		"name;city;Website;Phone;Email",
		"Acme;München;https://acme.de/kontakt;+49 89 1;info@acme.de",
		"Gamma;Hamburg;;;",
	}, lines)
	require.Equal(t, 2, w.Complete())

	require.NoError(t, w.SetResult(1, "", "", ""))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "Beta;Berlin;;;", lines[2])
}

func TestWriterSetResultOutOfRange(t *testing.T) {
	t.Parallel()

	w := NewWriter(filepath.Join(t.TempDir(), "out.csv"), ',', []string{"name"}, []Record{{"name": "Acme"}})
	require.Error(t, w.SetResult(1, "", "", ""))
	require.Error(t, w.SetResult(-1, "", "", ""))
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	_, _, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"), ',', nil)
	require.Error(t, err)
}
