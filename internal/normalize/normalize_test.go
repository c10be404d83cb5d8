package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/formstream/backend/internal/models"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single word", "Name", "name"},
		{"two words", "Phone Number", "phoneNumber"},
		{"extra separators", "  phone_number--ext ", "phoneNumberExt"},
		{"all caps", "NAME", "name"},
		{"acronym prefix", "HTTPServer Port", "httpServerPort"},
		{"digits", "Address 2", "address2"},
		{"empty", "", ""},
		{"only separators", " -- ", ""},
		{"devanagari keeps script", "मतदाता क्रमांक", "मतदाताक्रमांक"},
		{"devanagari with latin noise", "क्रमांक (no.)", "क्रमांक"},
		{"devanagari digits kept", "वार्ड १२", "वार्ड१२"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.input))
		})
	}
}

func TestKeyIdempotent(t *testing.T) {
	inputs := []string{
		"Name", "Phone Number", "voter ID number", "NAME", "Address 2",
		"मतदाता क्रमांक", "httpServer", "a b c d", "already_snake_case",
	}
	for _, in := range inputs {
		once := Key(in)
		assert.Equal(t, once, Key(once), "Key not stable for %q", in)
	}
}

func TestHeader(t *testing.T) {
	assert.Equal(t, "phone number", Header("  Phone Number "))
	assert.Equal(t, "name", Header("NAME"))
}

func TestRowFillsMissingValues(t *testing.T) {
	expected := []string{"name", "phone number", "ward"}
	row := map[string]string{"name": "Asha", "ward": "  "}

	rec := Row("doc-1", row, expected)

	assert.Equal(t, "doc-1", rec.DocumentID)
	assert.Equal(t, map[string]string{
		"name":        "Asha",
		"phoneNumber": models.MissingValue,
		"ward":        "",
	}, rec.Fields)
}

// A cell the row actually carries is stored as-is (trimmed), even when blank;
// the sentinel is reserved for headers the row never had.
func TestRowKeepsBlankCells(t *testing.T) {
	expected := []string{"name", "phone number", "ward"}
	row := map[string]string{"name": "Asha", "phone number": "", "ward": "W1"}

	rec := Row("doc-1", row, expected)

	assert.Equal(t, map[string]string{
		"name":        "Asha",
		"phoneNumber": "",
		"ward":        "W1",
	}, rec.Fields)
}

func TestRowHasEveryContractHeader(t *testing.T) {
	expected := []string{"a", "b", "c"}
	rec := Row("d", map[string]string{}, expected)
	assert.Len(t, rec.Fields, 3)
	for _, v := range rec.Fields {
		assert.Equal(t, models.MissingValue, v)
	}
}

func TestIsEmptyRow(t *testing.T) {
	assert.True(t, IsEmptyRow(nil))
	assert.True(t, IsEmptyRow([]string{"", "  ", "\t"}))
	assert.False(t, IsEmptyRow([]string{"", "x"}))
}
