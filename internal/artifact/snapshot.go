package artifact

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeSnapshotter screenshots rendered charts with headless Chrome.
type ChromeSnapshotter struct {
	ExecPath string
	// Settle is how long chart animations get before the screenshot.
	Settle time.Duration
}

func (c ChromeSnapshotter) Snapshot(ctx context.Context, html []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "sentiscope-chart-*.html")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(html); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(1000, 620),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	settle := c.Settle
	if settle <= 0 {
		settle = 1500 * time.Millisecond
	}
	var png []byte
	err = chromedp.Run(bctx,
		chromedp.Navigate("file://"+f.Name()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.FullScreenshot(&png, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome snapshot: %w", err)
	}
	return png, nil
}
