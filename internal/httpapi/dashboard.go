package httpapi

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>FLOW</title>
<style>
  :root {
    --bg: #11151c;
    --panel: #1a2029;
    --line: #2a3240;
    --text: #dbe2ec;
    --muted: #7d8a9c;
    --accent: #2eaadc;
  }
  * { box-sizing: border-box; }
  body {
    margin: 0;
    background: var(--bg);
    color: var(--text);
    font: 14px/1.5 -apple-system, "Segoe UI", Roboto, sans-serif;
  }
  header {
    display: flex;
    align-items: baseline;
    gap: 12px;
    padding: 18px 24px;
    border-bottom: 1px solid var(--line);
  }
  header h1 { margin: 0; font-size: 18px; }
  header span { color: var(--muted); font-size: 12px; }
  main {
    display: grid;
    grid-template-columns: repeat(auto-fit, minmax(300px, 1fr));
    gap: 16px;
    padding: 24px;
  }
  section {
    background: var(--panel);
    border: 1px solid var(--line);
    border-radius: 8px;
    padding: 16px;
  }
  section h2 {
    margin: 0 0 12px;
    font-size: 13px;
    text-transform: uppercase;
    letter-spacing: .08em;
    color: var(--muted);
  }
  ul { margin: 0; padding: 0; list-style: none; }
  li {
    padding: 8px 0;
    border-bottom: 1px solid var(--line);
    display: flex;
    gap: 8px;
  }
  li:last-child { border-bottom: none; }
  li .when { color: var(--muted); font-size: 12px; margin-left: auto; white-space: nowrap; }
  .empty { color: var(--muted); padding: 8px 0; }
  .dot { color: var(--accent); }
</style>
</head>
<body>
<header>
  <h1><span class="dot">●</span> FLOW</h1>
  <span id="status">connecting…</span>
</header>
<main>
  <section>
    <h2>Activity</h2>
    <ul id="activity"><li class="empty">No activity yet</li></ul>
  </section>
  <section>
    <h2>Memory</h2>
    <ul id="memory"><li class="empty">No memories yet</li></ul>
  </section>
  <section>
    <h2>Events</h2>
    <ul id="events"><li class="empty">No events yet</li></ul>
  </section>
</main>
<script>
function ago(ts) {
  if (!ts) return '';
  var s = Math.max(0, (Date.now() - new Date(ts).getTime()) / 1000);
  if (s < 60) return Math.floor(s) + 's ago';
  if (s < 3600) return Math.floor(s / 60) + 'm ago';
  if (s < 86400) return Math.floor(s / 3600) + 'h ago';
  return Math.floor(s / 86400) + 'd ago';
}

function render(id, items, label) {
  var list = document.getElementById(id);
  if (!items || !items.length) {
    list.innerHTML = '<li class="empty">No ' + id + ' yet</li>';
    return;
  }
  list.innerHTML = items.slice(0, 12).map(function (item) {
    return '<li><span>' + (item.icon || '•') + '</span><span>' + label(item) +
      '</span><span class="when">' + ago(item.timestamp) + '</span></li>';
  }).join('');
}

function refresh() {
  fetch('/api/activity').then(function (r) { return r.ok ? r.json() : { activities: [] }; })
    .then(function (doc) {
      render('activity', doc.activities, function (a) { return a.description; });
    }).catch(function () {});
  fetch('/api/memory').then(function (r) { return r.ok ? r.json() : { memories: [] }; })
    .then(function (doc) {
      render('memory', doc.memories, function (m) { return m.content; });
    }).catch(function () {});
  fetch('/api/events').then(function (r) { return r.ok ? r.json() : { items: [] }; })
    .then(function (doc) {
      render('events', doc.items.slice().reverse(), function (e) { return e.type; });
    }).catch(function () {});
}

function connect() {
  var status = document.getElementById('status');
  var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events/ws');
  ws.onopen = function () { status.textContent = 'live'; };
  ws.onmessage = function () { refresh(); };
  ws.onclose = function () {
    status.textContent = 'reconnecting…';
    setTimeout(connect, 3000);
  };
}

refresh();
setInterval(refresh, 15000);
connect();
</script>
</body>
</html>
`
