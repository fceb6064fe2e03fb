package checkpoint

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/metrics"
	"github.com/DataExMachina-dev/checkpoint-go/internal/reader"
)

// HTTPHandler returns a handler rendering the recorder status, the recent
// checkpoints and the thread table of the latest one. POSTing "capture"
// writes a new checkpoint first.
func HTTPHandler() http.Handler {
	return httpHandler{}
}

type httpHandler struct{}

func (h httpHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// GETs render the current state of the recorder.
	if req.Method == http.MethodGet {
		h.handleGet(w)
		return
	}
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := req.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		return
	}
	if _, ok := req.Form["capture"]; !ok {
		http.Error(w, "invalid POST: missing capture", http.StatusBadRequest)
		return
	}
	if _, err := Capture(context.Background(), All); err != nil {
		http.Error(w, fmt.Sprintf("capture failed: %v", err), http.StatusInternalServerError)
		return
	}
	h.handleGet(w)
}

func (h httpHandler) handleGet(w http.ResponseWriter) {
	singleton.mu.Lock()
	rec, conn := singleton.mu.rec, singleton.mu.conn
	singleton.mu.Unlock()

	var statusStr, color string
	switch {
	case rec == nil:
		statusStr, color = "stopped", "red"
	case conn != nil && conn.Serving():
		statusStr, color = fmt.Sprintf("recording, serving on %s", conn.Addr()), "green"
	default:
		statusStr, color = "recording", "green"
	}

	sb := strings.Builder{}
	sb.WriteString(`<html>
<head>
	<title>Checkpoints</title>
	<style>
	.circle {
		height: 21px;
		width: 21px;
		border-radius: 50%;
		display: inline-block;
	}
	td, th { padding: 2px 8px; text-align: left; }
	</style>
</head>
<body>
<h1>Checkpoints</h1>
`)
	sb.WriteString(fmt.Sprintf(`
<div style="display:flex; flex-direction:row; align-items:center; gap:3px">
	<div class="circle" style="background-color:%s;"></div>
	<span>%s</span>
</div>`, color, html.EscapeString(statusStr)))

	if rec == nil {
		sb.WriteString("</body>\n</html>")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(sb.String()))
		return
	}

	sb.WriteString(`
<form action="" method="POST">
<input type="submit" value="Capture" name="capture"/>
</form>`)

	recent := rec.Recent()
	sb.WriteString("<h2>Recent</h2>\n<table>\n<tr><th>seq</th><th>kind</th><th>types</th><th>bytes</th><th>duration</th><th>time</th></tr>\n")
	for i := len(recent) - 1; i >= 0; i-- {
		c := recent[i]
		sb.WriteString(fmt.Sprintf("<tr><td>%d</td><td>%s</td><td>%d</td><td>%d</td><td>%s</td><td>%s</td></tr>\n",
			c.Sequence, metrics.KindLabel(c.Kind), c.Types, len(c.Data), c.Duration, c.Time.Format("15:04:05.000")))
	}
	sb.WriteString("</table>\n")

	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Kind.Has(framing.KindThreads) {
			writeThreads(&sb, recent[i].Data)
			break
		}
	}
	sb.WriteString("</body>\n</html>")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func writeThreads(sb *strings.Builder, data []byte) {
	cps, err := reader.Decode(data)
	if err != nil || len(cps) != 1 {
		sb.WriteString(fmt.Sprintf("<p>failed to decode checkpoint: %s</p>\n", html.EscapeString(fmt.Sprint(err))))
		return
	}
	t, ok := cps[0].Table(framing.TypeThread)
	if !ok {
		return
	}
	ths, err := t.Threads()
	if err != nil {
		return
	}
	sb.WriteString(fmt.Sprintf("<h2>Threads (checkpoint %d)</h2>\n<table>\n", cps[0].Sequence))
	sb.WriteString("<tr><th>id</th><th>name</th><th>os id</th><th>managed id</th><th>group</th></tr>\n")
	for _, th := range ths {
		sb.WriteString(fmt.Sprintf("<tr><td>%d</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td></tr>\n",
			th.TraceID, html.EscapeString(th.NativeName), th.OSID, th.ManagedID, th.GroupID))
	}
	sb.WriteString("</table>\n")
}
