// Package viz renders the model as a standalone HTML document. The
// model JSON is embedded verbatim into the page together with the
// renderer script, so the output file has no external dependencies.
package viz

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"io"

	"github.com/FocuswithJustin/sqlitescope/internal/model"
)

//go:embed assets/viz.html
var pageTemplate string

var tmpl = template.Must(template.New("viz").Parse(pageTemplate))

// Render writes the standalone visualization of m to w.
func Render(w io.Writer, m *model.Model) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, map[string]any{
		"Title": m.DatabaseInfo.FileName,
		"Model": template.JS(data),
	})
}
