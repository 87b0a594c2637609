package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/payload-release/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"clock": func(t time.Time) string {
		return t.UTC().Format("15:04:05.000")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Release Receiver</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.armed { color: red; font-weight: bold; }
.safe { color: green; }
.unknown { color: orange; }
.released { color: red; }
.connected { color: green; }
.disconnected { color: #888; }
</style>
</head>
<body>
<h1>Release Receiver</h1>

<h2>Safety</h2>
<table>
<tr><th>Arm</th><td id="arm-state" class="{{if eq (stateOrUnknown (printf "%s" .Arm)) "ARMED"}}armed{{else if eq (stateOrUnknown (printf "%s" .Arm)) "SAFE"}}safe{{else}}unknown{{end}}">{{stateOrUnknown (printf "%s" .Arm)}}</td></tr>
<tr><th>Pulses measured</th><td>{{.Pulses.Measured}}</td></tr>
<tr><th>Pulses discarded</th><td>{{.Pulses.Discarded}}</td></tr>
</table>

<h2>Actuators</h2>
<table>
<tr><th>Next</th><td>{{.Cursor}}</td></tr>
{{range $i, $a := .Angles}}<tr><th>Actuator {{$i}}</th><td{{if gt $a 0}} class="released"{{end}}>{{$a}}&deg;</td></tr>
{{end}}<tr><th>Pending resets</th><td>{{len .Pending}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Releases</th><td>{{.Counts.Releases}}</td></tr>
<tr><th>Ignored (SAFE)</th><td>{{.Counts.IgnoredSafe}}</td></tr>
<tr><th>Ignored (opcode)</th><td>{{.Counts.IgnoredOpcode}}</td></tr>
<tr><th>Resets</th><td>{{.Counts.Resets}}</td></tr>
<tr><th>Arm changes</th><td>{{.Counts.ArmChanges}}</td></tr>
</table>

{{if .Recent}}<h2>Recent Events</h2>
<table>
{{range .Recent}}<tr><th>{{clock .Timestamp}}</th><td>{{.Type}}{{if ge .Actuator 0}} #{{.Actuator}}{{end}}{{if .Arm}} ({{.Arm}}){{end}}</td></tr>
{{end}}</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Safety input</th><td>{{.Config.SafetyMode}}</td></tr>
<tr><th>Radio</th><td>{{.Config.RadioDriver}}</td></tr>
<tr><th>Servo</th><td>{{.Config.ServoDriver}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Reset delay</th><td>{{.Config.ResetDelayMs}}ms ({{.Config.ResetPolicy}})</td></tr>
<tr><th>Stale after</th><td>{{if eq .Config.StaleAfterMs 0}}disabled{{else}}{{.Config.StaleAfterMs}}ms{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
