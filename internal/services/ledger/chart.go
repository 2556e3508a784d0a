package ledger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/cryptosage/sage/internal/models"
)

// RenderPerformanceChart renders a PNG line chart of net worth over time.
// Returns raw PNG bytes.
func RenderPerformanceChart(points []models.PerformancePoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(points))
	}

	xValues := make([]time.Time, len(points))
	yValues := make([]float64, len(points))
	minY, maxY := points[0].Value, points[0].Value
	for i, p := range points {
		xValues[i] = p.Timestamp
		yValues[i] = p.Value
		if p.Value < minY {
			minY = p.Value
		}
		if p.Value > maxY {
			maxY = p.Value
		}
	}

	series := chart.TimeSeries{
		Name: "Net Worth",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("10b981"), // emerald-500
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: yValues,
	}

	graph := chart.Chart{
		Title:  "Portfolio Performance",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 2 15:04")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0fk", f/1000)
				}
				return ""
			},
		},
		Series: []chart.Series{series},
	}

	// A flat series (no net-worth movement yet) has a zero value range,
	// which the renderer rejects. Pad it.
	if maxY-minY < 1 {
		graph.YAxis.Range = &chart.ContinuousRange{
			Min: minY - 1,
			Max: maxY + 1,
		}
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
