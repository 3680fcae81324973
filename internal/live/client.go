package live

// clientScript connects to /live, swaps the marked root on every render frame
// and sends a command frame for clicks on elements carrying data-command.
// data-args holds a JSON array of arguments.
const clientScript = `(function () {
  var marker = "` + RootMarker + `";
  var root = document.querySelector("[" + marker + "]");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/live");
  var seq = 0;

  function swap(markup) {
    var t = document.createElement("template");
    t.innerHTML = markup;
    var next = t.content.firstElementChild;
    if (!next || !root) return;
    next.setAttribute(marker, "");
    root.replaceWith(next);
    root = next;
  }

  ws.onmessage = function (ev) {
    var f = JSON.parse(ev.data);
    if (f.type === "render") swap(f.html);
    else if (f.type === "redirect") { var u = new URL(f.url); location.assign(u.pathname + u.search + u.hash); }
    else if (f.type === "error") console.error("pagekit:", f.code, f.message);
  };

  document.addEventListener("click", function (ev) {
    var el = ev.target.closest("[data-command]");
    if (!el) return;
    ev.preventDefault();
    var args = [];
    if (el.dataset.args) { try { args = JSON.parse(el.dataset.args); } catch (e) { console.error(e); } }
    seq++;
    ws.send(JSON.stringify({type: "command", request_id: String(seq), command: el.dataset.command, args: args}));
  });
})();`
