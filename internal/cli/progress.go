package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
)

// embedProgress returns a progress callback that renders a bar once the
// total is known. Nothing is drawn for an empty run.
func embedProgress() func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("Embedding"),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)
	}
}
