package portal

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/proxiswitch/internal/settings"
	"github.com/sweeney/proxiswitch/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>ProxiSwitch {{.Snap.DeviceID}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 55%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.banner { padding: 8px; margin: 1em 0; }
.saved { background: #e6ffe6; border: 1px solid green; }
.problem { background: #ffe6e6; border: 1px solid red; }
input { width: 100%; box-sizing: border-box; font-family: monospace; }
button { padding: 6px 16px; font-family: monospace; }
.hint { color: #888; font-size: 0.9em; }
</style>
</head>
<body>
<h1>ProxiSwitch {{.Snap.DeviceID}}</h1>

{{if .Saved}}<div class="banner saved">Settings saved.</div>{{end}}
{{if .Error}}<div class="banner problem">{{.Error}}</div>{{end}}

<h2>State</h2>
<table>
<tr><th>Outlet</th><td class="{{if .Snap.RelayOn}}on{{else}}off{{end}}">{{if .Snap.RelayOn}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Paired device</th><td>{{if .Snap.Paired}}{{.Snap.Paired}}{{else}}none{{end}}</td></tr>
<tr><th>Learning</th><td>{{if .Snap.Learning}}yes{{else}}no{{end}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Snap.Uptime}}</td></tr>
<tr><th>Startups</th><td>{{.Snap.Startups}}</td></tr>
</table>

<h2>Devices in range</h2>
{{if .Snap.Devices}}<table>
{{range .Snap.Devices}}<tr><th>{{.ID}}</th><td>{{.RSSI}} dBm</td></tr>
{{end}}</table>{{else}}<p class="hint">None seen. Scanning pauses while this page is up.</p>{{end}}

<h2>Settings</h2>
<form method="POST" action="/save">
<table>
<tr><th><label for="near_rssi">Near threshold (dBm)</label></th><td><input type="number" id="near_rssi" name="near_rssi" value="{{.Values.MaxNearRSSI}}"></td></tr>
<tr><th><label for="close_rssi">Close threshold (dBm)</label></th><td><input type="number" id="close_rssi" name="close_rssi" value="{{.Values.CloseRSSI}}"></td></tr>
<tr><th><label for="max_not_seen_ms">Absence timeout (ms)</label></th><td><input type="number" id="max_not_seen_ms" name="max_not_seen_ms" value="{{.Values.MaxNotSeenMillis}}"></td></tr>
<tr><th><label for="learn_duration_ms">Learn window (ms)</label></th><td><input type="number" id="learn_duration_ms" name="learn_duration_ms" value="{{.Values.LearnDurationMillis}}"></td></tr>
<tr><th><label for="wifi_on_ms">WiFi-on hold (ms)</label></th><td><input type="number" id="wifi_on_ms" name="wifi_on_ms" value="{{.Values.WifiOnThresholdMillis}}"></td></tr>
<tr><th><label for="wifi_off_ms">WiFi-off hold (ms)</label></th><td><input type="number" id="wifi_off_ms" name="wifi_off_ms" value="{{.Values.WifiOffThresholdMillis}}"></td></tr>
<tr><th><label for="learn_ms">Learn hold (ms)</label></th><td><input type="number" id="learn_ms" name="learn_ms" value="{{.Values.LearnThresholdMillis}}"></td></tr>
<tr><th><label for="factory_reset_ms">Factory reset hold (ms)</label></th><td><input type="number" id="factory_reset_ms" name="factory_reset_ms" value="{{.Values.FactoryThresholdMillis}}"></td></tr>
<tr><th><label for="ap_password">AP password</label></th><td><input type="password" id="ap_password" name="ap_password" value="{{.Values.APPassword}}"></td></tr>
</table>
<button type="submit">Save</button>
</form>
<p class="hint">Changing the AP password closes this page. Hold the button again to reopen it with the new password.</p>

<p><a href="/status.json">JSON</a></p>
</body>
</html>
`

type pageData struct {
	Snap   status.Snapshot
	Values settings.Values
	Saved  bool
	Error  string
}

func renderIndex(w io.Writer, data pageData) {
	indexTmpl.Execute(w, data)
}
