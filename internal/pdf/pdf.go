// Package pdf handles the receipt files after capture: verifying that an
// export is a readable PDF and merging a batch into one document.
package pdf

import (
	"errors"
	"fmt"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Merge concatenates the given PDFs, in input order, into a single file at
// outPath, then validates the result.
func Merge(paths []string, outPath string) error {
	if len(paths) == 0 {
		return errors.New("no receipts to merge")
	}
	if err := api.MergeCreateFile(paths, outPath, false, nil); err != nil {
		return fmt.Errorf("merging receipts: %w", err)
	}
	if err := api.ValidateFile(outPath, nil); err != nil {
		return fmt.Errorf("validating merged output: %w", err)
	}
	return nil
}

// Inspector verifies captures by opening them with a real PDF renderer.
// A capture that Chrome truncated or replaced with an error page fails here
// rather than surfacing when the user opens the file.
type Inspector struct{}

// Verify opens the file and reports its page count. Zero pages or an
// unreadable file is an error.
func (Inspector) Verify(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages == 0 {
		return 0, errors.New("pdf has no pages")
	}
	return pages, nil
}
