package landfall

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/soniakeys/meeus/julian"
)

// ExportConfig configures the predicted-path export, mostly for plotting the
// trajectory a renderer would draw.
type ExportConfig struct {
	Filename string
	AsCSV    bool
}

// IsUseless returns whether this config doesn't actually export anything.
func (c ExportConfig) IsUseless() bool {
	return !c.AsCSV || c.Filename == ""
}

// StreamPath consumes path points from the channel and writes them out per
// the configuration. It is meant to run in its own goroutine and returns once
// the channel closes.
func StreamPath(conf ExportConfig, points <-chan PathPoint) {
	if conf.IsUseless() {
		for range points {
		}
		return
	}
	f, err := os.Create(conf.Filename)
	if err != nil {
		panic(fmt.Errorf("could not create %s: %s", conf.Filename, err))
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"jd", "lat(deg)", "lon(deg)", "alt(m)", "vel(m/s)"})
	for p := range points {
		w.Write([]string{
			fmt.Sprintf("%.8f", julian.TimeToJD(p.DT)),
			fmt.Sprintf("%.6f", p.Lat),
			fmt.Sprintf("%.6f", p.Lon),
			fmt.Sprintf("%.1f", p.Alt),
			fmt.Sprintf("%.2f", norm(p.V)),
		})
	}
}

// Export streams the trajectory's sampled path through StreamPath.
func (tr *Trajectory) Export(conf ExportConfig) {
	ch := make(chan PathPoint, 100)
	done := make(chan struct{})
	go func() {
		StreamPath(conf, ch)
		close(done)
	}()
	for _, p := range tr.path {
		ch <- p
	}
	close(ch)
	<-done
}
