package codec

import "github.com/chis/embedlab/internal/vfs"

const defaultHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Custom Assignment</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <h1>Custom Assignment</h1>
  <div id="app"></div>
  <script src="script.js"></script>
</body>
</html>`

const defaultCSS = `body {
  font-family: sans-serif;
  margin: 20px;
  background-color: #f5f5f5;
}

h1 {
  color: #333;
}`

const defaultJS = `// JavaScript code here
document.addEventListener('DOMContentLoaded', () => {
  const app = document.getElementById('app');
  app.textContent = 'Hello from JavaScript!';
});`

// DefaultAssignment returns the starter template decoded tokens are merged
// over. Every call returns a fresh copy.
func DefaultAssignment() Assignment {
	return Assignment{
		Title:      "Custom Assignment",
		Assignment: "<p>Description of your assignment</p>",
		MaxScore:   0,
		Files: []vfs.FileRecord{
			{Filename: "index.html", Autoreload: true, Content: defaultHTML},
			{Filename: "style.css", Autoreload: true, Content: defaultCSS},
			{Filename: "script.js", Autoreload: true, Content: defaultJS},
		},
		MainFile:    "index.html",
		PreviewType: "html",
	}
}
