package notify

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.TrackerID}}</title>
  <style>
    body { margin: 0; padding: 24px; background-color: #f3f4f6; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; color: #111827; line-height: 1.5; }
    .container { max-width: 640px; margin: 0 auto; background: #ffffff; border-radius: 8px; border: 1px solid #e5e7eb; overflow: hidden; }
    .header { padding: 20px 24px; background: #1f2937; color: #ffffff; }
    .tracker { font-size: 20px; font-weight: 700; }
    .meta { font-size: 12px; color: #d1d5db; }
    .section { padding: 16px 24px; border-top: 1px solid #e5e7eb; }
    .label { font-size: 11px; text-transform: uppercase; letter-spacing: 0.08em; color: #6b7280; margin-bottom: 6px; }
    .type { display: inline-block; min-width: 64px; font-size: 11px; font-weight: 600; color: #374151; }
    .footnote { font-size: 13px; color: #4b5563; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div class="tracker">{{.TrackerID}}</div>
      <div class="meta">{{.Target}} &middot; {{.Timestamp}} &middot; run {{.RunID}}</div>
    </div>
    <div class="section">
      <div class="label">Summary</div>
      <div>{{.Summary}}</div>
      {{if .Footnote}}<p class="footnote">{{.Footnote}}</p>{{end}}
    </div>
    {{if .Events}}
    <div class="section">
      <div class="label">Changes</div>
      <ul>
        {{range .Events}}<li><span class="type">{{.Type}}</span> {{.Label}}</li>{{end}}
      </ul>
      {{if .More}}<p class="footnote">and {{.More}} more</p>{{end}}
    </div>
    {{end}}
  </div>
</body>
</html>
`
