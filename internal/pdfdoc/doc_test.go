package pdfdoc

import (
	"bytes"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	a := Digest([]byte("%PDF-1.4 a"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Digest([]byte("%PDF-1.4 a")))
	assert.NotEqual(t, a, Digest([]byte("%PDF-1.4 b")))
}

func TestCheckPage(t *testing.T) {
	assert.NoError(t, CheckPage(1, 3))
	assert.NoError(t, CheckPage(3, 3))
	assert.ErrorIs(t, CheckPage(0, 3), ErrPageRange)
	assert.ErrorIs(t, CheckPage(4, 3), ErrPageRange)
	assert.ErrorIs(t, CheckPage(1, 0), ErrPageRange)
}

func TestBlankPDFOffsets(t *testing.T) {
	b := BlankPDF()
	require.True(t, bytes.HasPrefix(b, []byte("%PDF-1.4\n")))

	m := regexp.MustCompile(`startxref\n(\d+)\n`).FindSubmatch(b)
	require.NotNil(t, m)
	off, err := strconv.Atoi(string(m[1]))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b[off:], []byte("xref\n")))

	entries := regexp.MustCompile(`(\d{10}) 00000 n `).FindAllSubmatch(b, -1)
	require.Len(t, entries, 3)
	for i, e := range entries {
		pos, _ := strconv.Atoi(string(e[1]))
		assert.True(t, bytes.HasPrefix(b[pos:], []byte(strconv.Itoa(i+1)+" 0 obj")))
	}
}
