package conformance

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// progressFunc returns the callback reporting finished variants, drawing a
// bar on stderr if requested. finish must be called after the run.
func (o Options) progressFunc(total int) (report func(done, total int), finish func()) {
	if o.Progress != nil {
		return o.Progress, func() {}
	}
	if !o.ShowProgress || total == 0 {
		return nil, func() {}
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("aligning variants"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return func(done, _ int) {
			_ = bar.Set(done)
		}, func() {
			_ = bar.Finish()
		}
}
