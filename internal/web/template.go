package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/water-meter/internal/schedule"
	"github.com/sweeney/water-meter/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"liters": func(v float64) string {
		return fmt.Sprintf("%.3f", v)
	},
	"lpm": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
	"hm": func(hour, minute int) string {
		return fmt.Sprintf("%02d:%02d", hour, minute)
	},
	"inc": func(i int) int { return i + 1 },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Water Meter</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #c00; font-weight: bold; }
.override { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Water Meter</h1>

<h2>Valve</h2>
<table>
<tr><th>Position</th><td class="{{if .Meter.ValveOpen}}open{{else}}closed{{end}}">{{if .Meter.ValveOpen}}OPEN{{else}}CLOSED{{end}}</td></tr>
<tr><th>Mode</th><td{{if .Meter.Override}} class="override"{{end}}>{{.Meter.ValveState}}</td></tr>
</table>

<h2>Usage</h2>
<table>
<tr><th>Flow</th><td>{{lpm .Meter.FlowLpm}} L/min</td></tr>
<tr><th>Today</th><td>{{liters .Meter.DailyLiters}} L</td></tr>
<tr><th>Total</th><td>{{liters .Meter.TotalLiters}} L</td></tr>
<tr><th>Week</th><td>{{liters .Meter.WeekLiters}} L ({{.Meter.WeekSeconds}} s of flow)</td></tr>
</table>

<h2>Schedule</h2>
<table>
{{range $i, $w := .Windows}}<tr><th>Window {{inc $i}}</th><td>{{if $w.Disabled}}disabled{{else}}{{hm $w.StartHour $w.StartMin}} &ndash; {{hm $w.EndHour $w.EndMin}}{{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Clock</th><td>{{if .Meter.TimeValid}}{{.MeterTime.Format "2006-01-02 15:04:05"}}{{else}}not synced{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Timezone</th><td>{{.Meter.Config.Timezone}}</td></tr>
<tr><th>Calibration</th><td>{{.Meter.Config.PulsesPerLiter}} pulses/L</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p>
<a href="/api/status">status</a> |
<a href="/api/report">report</a> |
<a href="/api/report.json">report.json</a> |
<a href="/api/summary.json">summary</a> |
<a href="/api/usage.csv">usage.csv</a> |
<a href="/metrics">metrics</a>
</p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Windows []schedule.Window
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Windows:  snap.Meter.Config.Windows[:],
	}
	indexTmpl.Execute(w, data)
}
