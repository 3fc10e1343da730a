package explain

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
)

var pageTmpl = template.Must(template.New("explanation").Funcs(template.FuncMap{
	"pct":    func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"num":    func(v float64) string { return fmt.Sprintf("%.4f", v) },
	"mul100": func(v float64) float64 { return v * 100 },
	"width": func(v float64) string {
		if v < 0 {
			v = -v
		}
		return fmt.Sprintf("%.0f", min(v*400, 100))
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Prediction explanation</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
td, th { padding: 2px 8px; text-align: left; }
.bar { display: inline-block; height: 10px; }
.pos { background: #2ca02c; }
.neg { background: #d62728; }
.prob { background: #1f77b4; }
.text { white-space: pre-wrap; border: 1px solid #ccc; padding: 1em; }
</style>
</head>
<body>
<h2>Prediction probabilities</h2>
<table>
{{range $i, $p := .Probabilities}}<tr><td>{{index $.ClassNames $i}}</td><td>{{pct $p}}</td><td><span class="bar prob" style="width: {{printf "%.0f" (mul100 $p)}}px"></span></td></tr>
{{end}}</table>
{{range .Labels}}
<h3>{{.Name}}</h3>
<p>intercept {{num .Intercept}}, local prediction {{num .LocalPred}}, score {{num .Score}}</p>
<table>
<tr><th>word</th><th>weight</th><th></th></tr>
{{range .Weights}}<tr><td>{{.Word}}</td><td>{{num .Weight}}</td><td><span class="bar {{if lt .Weight 0.0}}neg{{else}}pos{{end}}" style="width: {{width .Weight}}px"></span></td></tr>
{{end}}</table>
{{end}}
<h3>Text</h3>
<div class="text">{{.Text}}</div>
</body>
</html>
`))

// WriteHTML renders the explanation as a self-contained HTML page.
func (x *Explanation) WriteHTML(w io.Writer) error {
	if err := pageTmpl.Execute(w, x); err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	return nil
}

// SaveHTML writes the HTML page to path.
func (x *Explanation) SaveHTML(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	if err := x.WriteHTML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Display writes a plain-text summary of the explanation to w.
func (x *Explanation) Display(w io.Writer) error {
	var b strings.Builder
	b.WriteString("Prediction probabilities:\n")
	for i, p := range x.Probabilities {
		name := fmt.Sprintf("class %d", i)
		if i < len(x.ClassNames) {
			name = x.ClassNames[i]
		}
		fmt.Fprintf(&b, "  %-20s %6.2f%%\n", name, p*100)
	}
	for _, le := range x.Labels {
		fmt.Fprintf(&b, "\n%s (score %.3f, intercept %.4f):\n", le.Name, le.Score, le.Intercept)
		for _, wt := range le.Weights {
			fmt.Fprintf(&b, "  %-20s %+.4f\n", wt.Word, wt.Weight)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
