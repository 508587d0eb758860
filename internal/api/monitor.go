package api

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/clipfocus/continuity/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis ramp shared by the debug charts
var confidenceColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// showTracksChart renders the video's current tracks as a scatter plot
// (HTML) using go-echarts. This is a debugging-only endpoint to eyeball
// track positions without the player overlay. Regular tracks are colored
// by confidence; the sticky track gets its own red series.
func (s *Server) showTracksChart(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		httputil.BadRequest(w, "videoId query parameter is required")
		return
	}

	tracks := s.tracker.Latest(videoID)

	pts := make([]opts.ScatterData, 0, len(tracks))
	stickyPts := make([]opts.ScatterData, 0, 1)
	for _, t := range tracks {
		// Frame y grows downward; flip it so the plot matches the video.
		pt := opts.ScatterData{
			Name:  t.Identity,
			Value: []interface{}{t.CenterX, 1 - t.CenterY, t.Confidence},
		}
		if t.Sticky {
			stickyPts = append(stickyPts, pt)
		} else {
			pts = append(pts, pt)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Continuity Tracks", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Live Tracks", Subtitle: fmt.Sprintf("video=%s tracks=%d", videoID, len(tracks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 1, Name: "frame x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "frame y (flipped)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: confidenceColors},
		}),
	)

	scatter.AddSeries("tracks", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("sticky", stickyPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

const sessionsDashboardHTML = `<!DOCTYPE html>
<html>
<head><title>Continuity Sessions</title>
<style>
body { font-family: monospace; background: #1e1e1e; color: #ddd; padding: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #444; padding: 0.4em 0.8em; text-align: left; }
a { color: #6ece58; }
</style>
</head>
<body>
<h1>Continuity Sessions</h1>
<table>
<tr><th>Video</th><th>Tracks</th><th>Ticks</th><th>Sticky</th><th>Last timestamp</th><th></th></tr>
%s
</table>
</body>
</html>`

// showSessionsDashboard renders an HTML table of live sessions with links
// to the per-video track charts.
func (s *Server) showSessionsDashboard(w http.ResponseWriter, r *http.Request) {
	var rows strings.Builder
	for _, sess := range s.tracker.Sessions() {
		safeID := html.EscapeString(sess.VideoID)
		chartLink := "/debug/tracks?videoId=" + url.QueryEscape(sess.VideoID)
		fmt.Fprintf(&rows,
			"<tr><td>%s</td><td>%d</td><td>%d</td><td>%s</td><td>%.3f</td><td><a href=%q>chart</a></td></tr>\n",
			safeID, sess.TrackCount, sess.TickCount, html.EscapeString(sess.StickyID), sess.LastTimestamp, chartLink)
	}
	if rows.Len() == 0 {
		rows.WriteString(`<tr><td colspan="6">no live sessions</td></tr>`)
	}

	doc := fmt.Sprintf(sessionsDashboardHTML, rows.String())

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}
