package server

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// reloadScript is the live-reload client injected into served HTML. It
// reloads the page when a new generation succeeds and renders the failure
// overlay when a build breaks, keeping the connection open either way.
const reloadScript = `
(function () {
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var generation = null;
  function overlay(detail) {
    var el = document.getElementById("docserve-overlay");
    if (!detail) {
      if (el) el.remove();
      return;
    }
    if (!el) {
      el = document.createElement("div");
      el.id = "docserve-overlay";
      el.style.cssText = "position:fixed;top:0;left:0;right:0;z-index:2147483647;" +
        "background:#300;color:#fcc;padding:1em;font:14px monospace;max-height:50vh;overflow:auto";
      document.body.appendChild(el);
    }
    el.innerHTML = detail;
  }
  function connect() {
    var ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onmessage = function (msg) {
      var update = JSON.parse(msg.data);
      if (update.state === "failed") {
        overlay(update.detail || "<p>documentation build failed</p>");
        generation = update.generation;
        return;
      }
      if (update.state === "succeeded") {
        if (generation !== null && update.generation > generation) {
          location.reload();
          return;
        }
        overlay(null);
        generation = update.generation;
      }
    };
    ws.onclose = function () {
      setTimeout(connect, 1000);
    };
  }
  connect();
})();
`

// InjectReloadScript parses an HTML document and appends the live-reload
// client to its body, so generated pages connect back without the
// documentation builder knowing anything about docserve.
func InjectReloadScript(content []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return nil, fmt.Errorf("document has no body element")
	}

	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
	}
	script.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: reloadScript,
	})
	body.AppendChild(script)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}
	return buf.Bytes(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
