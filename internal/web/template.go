package web

import (
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/henrique-kyke/water-level-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"since": func(start, now time.Time) string {
		return humanize.RelTime(start, now, "", "")
	},
	"comma": func(n int) string {
		return humanize.Comma(int64(n))
	},
	"stateClass": func(s string) string {
		switch s {
		case "ON", "UP":
			return "on"
		case "OFF", "DOWN":
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Water Level · {{.Config.UnitID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
</style>
</head>
<body>
<h1>Water Level · {{.Config.UnitID}} ({{.Config.Role}})</h1>

{{if .Reservoirs}}
<h2>Reservoirs</h2>
<table>
<tr><th>Reservoir</th><th>Level</th><th>Last report</th></tr>
{{range .Reservoirs}}<tr><td>{{.Name}}</td><td class="{{if .Level.IsSet}}on{{else}}unknown{{end}}">{{.Level}}{{if .Mismatches}} ({{.Mismatches}} pending){{end}}</td><td>{{if .Remote}}{{ago .LastReport $.Now}}{{else}}local{{end}}</td></tr>
{{end}}</table>
{{end}}

{{if .Pump}}
<h2>Pump</h2>
<table>
<tr><th>State</th><td class="{{stateClass (printf "%s" .Pump)}}">{{.Pump}}</td></tr>
<tr><th>Transitions</th><td>{{comma .PumpCommands}}</td></tr>
{{if eq .Config.Role "monitor"}}<tr><th>Reports fresh</th><td>{{if .Fresh}}yes{{else}}no{{end}}</td></tr>{{end}}
</table>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>Transport</th><td class="{{stateClass .Transport.String}}">{{.Transport}}</td></tr>
<tr><th>Bus</th><td class="{{stateClass .Bus.String}}">{{.Bus}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Published</th><td>{{comma .Published}}</td></tr>
<tr><th>Publish errors</th><td>{{comma .PublishErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{since .StartTime .Now}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceThreshold}} mismatches</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>GPIO errors</th><td>{{comma .GPIOErrors}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

type reservoirRow struct {
	Name string
	status.Reservoir
	Remote bool
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	rows := make([]reservoirRow, 0, len(snap.Reservoirs))
	for r, res := range snap.Reservoirs {
		rows = append(rows, reservoirRow{
			Name:      string(r),
			Reservoir: res,
			Remote:    snap.Config.Role == "monitor",
		})
	}
	// main before aux
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name > rows[j].Name })

	data := struct {
		status.Snapshot
		Reservoirs []reservoirRow
	}{
		Snapshot:   snap,
		Reservoirs: rows,
	}
	return indexTmpl.Execute(w, data)
}
