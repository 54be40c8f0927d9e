package api

// overlayPage is the selection overlay served at /. It connects to the
// /api/overlay websocket, renders the preview frame on a canvas, and
// streams pointer gestures back.
const overlayPage = `<!DOCTYPE html>
<html>
<head>
    <title>SnipClip</title>
    <style>
        html, body { margin: 0; height: 100%; background: #111; overflow: hidden; }
        #stage { position: relative; width: 100%; height: 100%; }
        canvas { position: absolute; left: 0; top: 0; }
        #hud {
            position: absolute; top: 12px; left: 12px; z-index: 10;
            color: #eee; font-family: sans-serif; font-size: 14px;
            background: rgba(0,0,0,0.6); padding: 8px 12px; border-radius: 6px;
        }
        #hud button { margin-left: 6px; }
    </style>
</head>
<body>
    <div id="stage">
        <canvas id="frame"></canvas>
        <canvas id="draw"></canvas>
        <div id="hud">
            <span id="status">Waiting for capture...</span>
            <button onclick="setMode('rectangle')">Rect</button>
            <button onclick="setMode('circle')">Circle</button>
            <button onclick="sendCancel()">Cancel (Esc)</button>
        </div>
    </div>
    <script>
        const frameCanvas = document.getElementById('frame');
        const drawCanvas = document.getElementById('draw');
        const status = document.getElementById('status');
        let ws = null;
        let mode = 'rectangle';
        let dragging = false;
        let start = null;
        let haveFrame = false;
        let frameW = 0, frameH = 0;

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/api/overlay');
            ws.onopen = () => {
                resize();
                ws.send(JSON.stringify({
                    type: 'hello', mode: mode,
                    view_width: window.innerWidth, view_height: window.innerHeight
                }));
            };
            ws.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                if (msg.type === 'frame') showFrame(msg);
            };
            ws.onclose = () => {
                status.textContent = 'Disconnected, retrying...';
                setTimeout(connect, 1000);
            };
        }

        function resize() {
            for (const c of [frameCanvas, drawCanvas]) {
                c.width = window.innerWidth;
                c.height = window.innerHeight;
            }
        }

        function showFrame(msg) {
            frameW = msg.width; frameH = msg.height;
            const img = new Image();
            img.onload = () => {
                const ctx = frameCanvas.getContext('2d');
                ctx.fillStyle = '#111';
                ctx.fillRect(0, 0, frameCanvas.width, frameCanvas.height);
                const ox = (frameCanvas.width - frameW) / 2;
                const oy = (frameCanvas.height - frameH) / 2;
                ctx.drawImage(img, ox, oy, frameW, frameH);
                haveFrame = true;
                status.textContent = 'Drag to select (' + mode + ')';
            };
            img.src = 'data:image/png;base64,' + msg.image;
        }

        function setMode(m) {
            mode = m;
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'mode', mode: m}));
            }
            if (haveFrame) status.textContent = 'Drag to select (' + mode + ')';
        }

        function send(type, e) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: type, x: e.clientX, y: e.clientY}));
            }
        }

        function sendCancel() {
            dragging = false;
            clearDraw();
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'cancel'}));
            }
        }

        function clearDraw() {
            drawCanvas.getContext('2d').clearRect(0, 0, drawCanvas.width, drawCanvas.height);
        }

        function drawShape(e) {
            const ctx = drawCanvas.getContext('2d');
            clearDraw();
            ctx.strokeStyle = '#4af';
            ctx.lineWidth = 2;
            if (mode === 'rectangle') {
                ctx.strokeRect(
                    Math.min(start.x, e.clientX), Math.min(start.y, e.clientY),
                    Math.abs(e.clientX - start.x), Math.abs(e.clientY - start.y));
            } else {
                const cx = (start.x + e.clientX) / 2;
                const cy = (start.y + e.clientY) / 2;
                const r = Math.hypot(e.clientX - start.x, e.clientY - start.y) / 2;
                ctx.beginPath();
                ctx.arc(cx, cy, r, 0, 2 * Math.PI);
                ctx.stroke();
            }
        }

        drawCanvas.addEventListener('pointerdown', (e) => {
            if (!haveFrame) return;
            dragging = true;
            start = {x: e.clientX, y: e.clientY};
            send('down', e);
        });
        drawCanvas.addEventListener('pointermove', (e) => {
            if (!dragging) return;
            drawShape(e);
            send('move', e);
        });
        drawCanvas.addEventListener('pointerup', (e) => {
            if (!dragging) return;
            dragging = false;
            clearDraw();
            haveFrame = false;
            status.textContent = 'Waiting for capture...';
            send('up', e);
        });
        document.addEventListener('keydown', (e) => {
            if (e.key === 'Escape') sendCancel();
        });
        window.addEventListener('resize', resize);

        connect();
    </script>
</body>
</html>`
