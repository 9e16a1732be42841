package parser

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendorport/internal/parser/csv"
	"vendorport/internal/parser/xlsx"
)

type memSource []byte

func (m memSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m)), nil
}

func TestOpenByExtension(t *testing.T) {
	t.Parallel()
	assert.IsType(t, &xlsx.Source{}, Open(memSource(nil), "Parts.XLSX", Options{}))
	assert.IsType(t, &csv.Source{}, Open(memSource(nil), "parts.csv", Options{}))
	assert.IsType(t, &csv.Source{}, Open(memSource(nil), "parts.txt", Options{}))

	tab := Open(memSource("a|b\n1|2\n"), "x.txt", Options{Comma: '|'})
	hdr, err := tab.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hdr)
}
