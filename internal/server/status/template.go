package status

import (
	"html/template"

	"github.com/macpod/lasershark-go/types"
)

type statusTemplateData struct {
	Version string
	Session types.SessionStatus
	Log     string

	CSRFField template.HTML
}

const templateString = `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no">
  <title>Lasershark status</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", "Roboto", "Helvetica Neue", Arial, sans-serif;
    }

    p {
      color: #858585;
    }

    .inner-container {
      max-width: 1024px;
      margin: 0 auto;
      text-align: center;
    }

    .badge {
      display: inline-block;
      padding: 6px 10px;
      border: 1px solid #c0392b;
      border-radius: 4px;
      color: #c0392b;
    }

    table {
      margin: 20px auto;
      border-collapse: collapse;
    }

    td {
      padding: 4px 12px;
      border-bottom: 1px solid lightgray;
      text-align: left;
    }

    .space-top {
      margin-top: 34px;
    }

    .btn-primary {
      display: inline-block;
      padding: 10px 40px;
      background-color: #c0392b;
      color: white;
      border-radius: 4px;
    }
  </style>
</head>

<body>
  <div class="inner-container">
    <h1>Lasershark status</h1>
    <span class="badge">Version: {{.Version}}</span>

    {{with .Session}}
    {{if .Active}}
    <table>
      <tr><td>Serial</td><td>{{.Device.Serial}}</td></tr>
      <tr><td>Bus / address</td><td>{{.Device.Bus}} / {{.Device.Address}}</td></tr>
      <tr><td>Firmware</td><td>{{.Caps.FWMajor}}.{{.Caps.FWMinor}}</td></tr>
      <tr><td>Max ILDA rate</td><td>{{.Caps.MaxILDARate}} pps</td></tr>
      <tr><td>DAC range</td><td>{{.Caps.DACMin}} - {{.Caps.DACMax}}</td></tr>
      <tr><td>Ring buffer</td><td>{{.Caps.RingbufferSampleCount}} samples</td></tr>
      <tr><td>Bulk packet</td><td>{{.Caps.BulkPacketSampleCount}} samples</td></tr>
      <tr><td>Iso packet</td><td>{{.Caps.PacketSampleCount}} samples</td></tr>
      <tr><td>Lines read</td><td>{{.Lines}}</td></tr>
      <tr><td>Samples dropped</td><td>{{.Dropped}}</td></tr>
    </table>
    {{else}}
    <p>No session running</p>
    {{end}}
    {{end}}

    <div class="space-top">
      <p>Console Log</p>
      <textarea rows="25" cols="150" id="log">
{{.Log}}
      </textarea>
      <form>
        {{.CSRFField}}
        <a href="#" id="submitlog" onClick="doSubmit()">
          <div class="btn-primary">Download detailed log</div>
        </a>
      </form>
    </div>
  </div>
  <script>
  function doSubmit() {
    const formElement = document.getElementsByTagName("form")[0]
    const data = new URLSearchParams();
    for (const pair of new FormData(formElement)) {
      data.append(pair[0], pair[1]);
    }

    fetch("/status/log.gz", {
      method: 'post',
      body: data,
      credentials: 'same-origin',
    }).then(function(resp) {
      return resp.blob();
    }).then(function(blob) {
      const url = window.URL.createObjectURL(blob);
      const a = document.createElement("a");

      document.body.appendChild(a);
      a.style = "display: none";
      a.href = url;
      a.download = "log.gz";
      a.click();

      window.URL.revokeObjectURL(url);
    });
  }
  </script>
</body>
</html>
`

var statusTemplate = template.Must(template.New("status").Parse(templateString))
