package crawler

import (
	"context"
	"io"
	"sync"

	"walmart-receipt-crawler/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

// fakeDriver scripts the browser surface. Content is served either as a
// sequence of snapshots (scroll loops) or per-URL (candidate probing);
// CurrentURL can likewise step through a sequence to simulate redirects.
type fakeDriver struct {
	mu sync.Mutex

	url     string
	urlSeq  []string // successive CurrentURL results, sticking at the last
	urlIdx  int
	clickTo string // URL adopted after a successful Click

	contentSeq []string          // successive Content results, sticking at the last
	contentIdx int
	contentAt  map[string]string // per-URL Content results

	pdf    []byte
	pdfErr error

	navErr   map[string]error
	clickErr error
	waitErr  error

	navs    []string
	clicks  []string
	scrolls int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		navErr: make(map[string]error),
		pdf:    []byte("%PDF-1.4 fake"),
	}
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navs = append(d.navs, url)
	if err, ok := d.navErr[url]; ok {
		return err
	}
	d.url = url
	return nil
}

func (d *fakeDriver) WaitReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.waitErr
}

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.urlSeq) > 0 {
		i := d.urlIdx
		if i >= len(d.urlSeq) {
			i = len(d.urlSeq) - 1
		} else {
			d.urlIdx++
		}
		return d.urlSeq[i], nil
	}
	return d.url, nil
}

func (d *fakeDriver) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.contentAt != nil {
		return d.contentAt[d.url], nil
	}
	if len(d.contentSeq) == 0 {
		return "", nil
	}
	i := d.contentIdx
	if i >= len(d.contentSeq) {
		i = len(d.contentSeq) - 1
	} else {
		d.contentIdx++
	}
	return d.contentSeq[i], nil
}

func (d *fakeDriver) ScrollBy(ctx context.Context, dx, dy int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls++
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks = append(d.clicks, selector)
	if d.clickErr != nil {
		return d.clickErr
	}
	if d.clickTo != "" {
		d.url = d.clickTo
	}
	return nil
}

func (d *fakeDriver) PrintPDF(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.pdf, d.pdfErr
}
