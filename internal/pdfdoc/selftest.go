package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
)

// BlankPDF returns a valid single-page, empty A6 document.
func BlankPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 298 420] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// SelfTest opens and rasterizes BlankPDF with o, proving the rendering
// library is usable.
func SelfTest(ctx context.Context, o Opener) error {
	doc, err := o.OpenBytes(ctx, BlankPDF())
	if err != nil {
		return err
	}
	defer doc.Close()
	if doc.NumPage() != 1 {
		return fmt.Errorf("self test: expected 1 page, got %d", doc.NumPage())
	}
	if _, err := doc.RenderPage(ctx, 1, 0.25); err != nil {
		return fmt.Errorf("self test: %w", err)
	}
	return nil
}
