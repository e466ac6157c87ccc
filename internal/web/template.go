package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/grow-controller/internal/status"
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
	"ago": func(t, now time.Time) string {
		return humanize.RelTime(t, now, "ago", "from now")
	},
	"count": func(n int) string {
		return humanize.Comma(int64(n))
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Grow Controller</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alert { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Grow Controller{{if .Config.DeviceID}} <small>{{.Config.DeviceID}}</small>{{end}}</h1>

<h2>Grow Cycle</h2>
<table>
<tr><th>Cycle</th><td id="grow" class="{{if .GrowActive}}on{{else}}off{{end}}">{{if .GrowActive}}RUNNING{{else}}STOPPED{{end}}</td></tr>
<tr><th>Settings</th><td>{{if .SettingsReceived}}received{{else}}waiting{{end}}</td></tr>
<tr><th>Period</th><td>{{if .Daytime}}day{{else}}night{{end}} ({{.Config.DayStart}} to {{.Config.NightStart}})</td></tr>
<tr><th>Irrigation</th><td class="{{if .Irrigation}}on{{else}}off{{end}}">{{onOff .Irrigation}}</td></tr>
</table>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>Value</th><th>Target</th><th>Control</th><th>Updated</th></tr>
{{range .Channels}}<tr id="ch-{{.Name}}">
<td>{{.Name}}</td>
<td{{if .Alert}} class="alert"{{end}}>{{if .Valid}}{{printf "%.2f" .Value}}{{else}}n/a{{end}}{{if .Alert}} {{.Alert}}{{end}}</td>
<td>{{printf "%.2f" .Target}} &plusmn; {{printf "%.2f" .Margin}}</td>
<td>{{if .Enabled}}{{.Kind}}{{if .Phase}} {{.Phase}}{{end}}{{else}}monitoring{{end}}</td>
<td>{{if .Valid}}{{ago .Updated $.Now}}{{end}}</td>
</tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Doses</th><td>{{count .Doses}}</td></tr>
<tr><th>Alerts</th><td>{{count .Alerts}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SamplePeriodMs}}ms</td></tr>
<tr><th>Control</th><td>{{.Config.ControlPeriodMs}}ms</td></tr>
<tr><th>Publish</th><td>{{.Config.PublishPeriodMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">metrics</a></p>
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
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("http: render index: %v", err)
	}
}
