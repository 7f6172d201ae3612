package watchlist

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/jmaxwell/limitwatch/internal/models"
)

// RenderHistoryChart renders a PNG line chart of an instrument's daily
// closes. When a buy limit is set it is drawn as a gray dashed reference
// line. Returns raw PNG bytes.
func RenderHistoryChart(inst *models.TrackedInstrument) ([]byte, error) {
	if len(inst.History) < 2 {
		return nil, fmt.Errorf("need at least 2 history bars, got %d", len(inst.History))
	}

	xValues := make([]time.Time, len(inst.History))
	closeY := make([]float64, len(inst.History))
	for i, bar := range inst.History {
		xValues[i] = bar.Date
		closeY[i] = bar.Close
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: inst.Ticker,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
				StrokeWidth: 2.5,
			},
			XValues: xValues,
			YValues: closeY,
		},
	}

	if inst.BuyLimit != nil && *inst.BuyLimit > 0 {
		limitY := make([]float64, len(xValues))
		for i := range limitY {
			limitY[i] = *inst.BuyLimit
		}
		series = append(series, chart.TimeSeries{
			Name: "Buy Limit",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: xValues,
			YValues: limitY,
		})
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s Daily Close", inst.Ticker),
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: series,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
