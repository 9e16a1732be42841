package xlsx

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type memSource struct{ data []byte }

func (m memSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestSource(t *testing.T) {
	t.Parallel()
	data := workbook(t, [][]any{
		{"Part", "Price"},
		{"8060: Some part", "12.50"},
		{"", ""},
		{"591-67890B", "3"},
	})
	s := New(memSource{data: data}, Options{})

	hdr, err := s.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Part", "Price"}, hdr)

	n, sum, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotZero(t, sum)

	var got [][]string
	require.NoError(t, s.Each(context.Background(), func(_ int, row []string) error {
		got = append(got, row)
		return nil
	}))
	assert.Equal(t, [][]string{{"8060: Some part", "12.50"}, {"591-67890B", "3"}}, got)

	head, err := s.Head(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, head, 1)
}

func TestMissingSheet(t *testing.T) {
	t.Parallel()
	s := New(memSource{data: workbook(t, [][]any{{"a"}})}, Options{Sheet: "Nope"})
	_, err := s.Headers(context.Background())
	assert.Error(t, err)
}
