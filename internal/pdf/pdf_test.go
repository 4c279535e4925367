package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSinglePagePDF writes a minimal one-page PDF, computing the cross
// reference offsets from the bytes actually written.
func writeSinglePagePDF(t *testing.T, path string) {
	t.Helper()

	var b bytes.Buffer
	offsets := make([]int, 4)

	b.WriteString("%PDF-1.4\n")
	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n")

	xref := b.Len()
	b.WriteString("xref\n0 4\n")
	fmt.Fprintf(&b, "%010d %05d f \n", 0, 65535)
	for _, off := range offsets[1:] {
		fmt.Fprintf(&b, "%010d %05d n \n", off, 0)
	}
	b.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n")
	fmt.Fprintf(&b, "%d\n", xref)
	b.WriteString("%%EOF\n")

	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

func TestMergeCombinesReceipts(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "walmart_2026-08-10_555.pdf")
	second := filepath.Join(dir, "walmart_2026-08-12_77001.pdf")
	writeSinglePagePDF(t, first)
	writeSinglePagePDF(t, second)

	out := filepath.Join(dir, "walmart_receipts_2026-05-23_to_2026-08-21.pdf")
	require.NoError(t, Merge([]string{first, second}, out))

	pages, err := Inspector{}.Verify(out)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

func TestMergeRejectsEmptyInput(t *testing.T) {
	err := Merge(nil, filepath.Join(t.TempDir(), "out.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no receipts")
}

func TestMergeMissingInputFile(t *testing.T) {
	dir := t.TempDir()
	err := Merge([]string{filepath.Join(dir, "absent.pdf")}, filepath.Join(dir, "out.pdf"))
	assert.Error(t, err)
}

func TestVerifyCountsPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.pdf")
	writeSinglePagePDF(t, path)

	pages, err := Inspector{}.Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestVerifyRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("<html>blocked</html>"), 0o644))

	_, err := Inspector{}.Verify(path)
	assert.Error(t, err)
}

func TestVerifyMissingFile(t *testing.T) {
	_, err := Inspector{}.Verify(filepath.Join(t.TempDir(), "absent.pdf"))
	assert.Error(t, err)
}
