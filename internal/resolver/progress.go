package resolver

import (
	"io"
	"time"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

// downloadProgress renders one aggregate byte counter for a whole
// multi-object download. Object downloads run concurrently, so the bar
// is shared and incremented through proxy readers.
type downloadProgress struct {
	progress *mpb.Progress
	bar      *mpb.Bar
}

func newDownloadProgress(name string, totalBytes int64) *downloadProgress {
	progress := mpb.New(
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	bar := progress.AddBar(totalBytes,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	return &downloadProgress{progress: progress, bar: bar}
}

func (d *downloadProgress) Reader(r io.Reader) io.ReadCloser {
	return d.bar.ProxyReader(r)
}

func (d *downloadProgress) Wait() {
	if !d.bar.Completed() {
		d.bar.Abort(true)
	}
	d.progress.Wait()
}
