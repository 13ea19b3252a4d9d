package export

import (
	"bytes"
	"embed"
	"html/template"
	"regexp"
	"strings"

	"gridshare/api/internal/grid"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	gridTemplate   *template.Template
	noticeTemplate *template.Template
	homeTemplate   *template.Template
)

var cssHexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func init() {
	funcMap := template.FuncMap{
		"cssColor": cssColor,
	}
	gridTemplate = parseTemplate("grid", funcMap, fallbackGridTemplate)
	noticeTemplate = parseTemplate("notice", funcMap, fallbackNoticeTemplate)
	homeTemplate = parseTemplate("home", funcMap, fallbackHomeTemplate)
}

func parseTemplate(name string, funcMap template.FuncMap, fallback string) *template.Template {
	content, err := templateFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return template.Must(template.New(name).Funcs(funcMap).Parse(fallback))
	}
	return template.Must(template.New(name).Funcs(funcMap).Parse(string(content)))
}

// cssColor passes hex colors through and replaces anything else with the default.
func cssColor(value string) template.CSS {
	if !cssHexColor.MatchString(value) {
		value = grid.DefaultBgColor
	}
	return template.CSS(value)
}

// GridPage holds data for the grid template.
type GridPage struct {
	Title           string
	Size            int
	BgColor         string
	CreatorNickname string
	ShareURL        string
	Rows            [][]GridCell
}

// GridCell is one rendered cell.
type GridCell struct {
	Index int
	Title string
	Image template.URL
}

// NewGridPage lays out doc row by row.
func NewGridPage(doc grid.Document, shareURL string) GridPage {
	page := GridPage{
		Title:           Title(doc),
		Size:            doc.Size,
		BgColor:         doc.BgColor,
		CreatorNickname: doc.CreatorNickname,
		ShareURL:        shareURL,
	}
	for i, section := range doc.Sections {
		row, _ := doc.Position(i)
		if row >= len(page.Rows) {
			page.Rows = append(page.Rows, make([]GridCell, 0, doc.Size))
		}
		cell := GridCell{Index: i, Title: strings.TrimSpace(section.Title)}
		if img, ok := doc.Image(i); ok && strings.HasPrefix(img, "data:image/") {
			cell.Image = template.URL(img)
		}
		page.Rows[row] = append(page.Rows[row], cell)
	}
	return page
}

// Title is the heading shown above a grid.
func Title(doc grid.Document) string {
	if nickname := strings.TrimSpace(doc.Nickname); nickname != "" {
		return nickname + "さんのグリッド"
	}
	return "シェアされたグリッド"
}

// Notice is an informational page, optionally redirecting after a delay.
type Notice struct {
	Title        string
	Message      string
	Redirect     string
	DelaySeconds int
}

// Home holds data for the landing page.
type Home struct {
	Sizes       []int
	DefaultSize int
}

func NewHome() Home {
	home := Home{DefaultSize: grid.DefaultSize}
	for size := grid.MinSize; size <= grid.MaxSize; size++ {
		home.Sizes = append(home.Sizes, size)
	}
	return home
}

func RenderGridHTML(page GridPage) (string, error) {
	return render(gridTemplate, page)
}

func RenderNoticeHTML(notice Notice) (string, error) {
	return render(noticeTemplate, notice)
}

func RenderHomeHTML(home Home) (string, error) {
	return render(homeTemplate, home)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Fallback templates are used if the embedded files fail to load.
const fallbackGridTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
  <div id="grid" style="background: {{.BgColor | cssColor}}">
    <h1>{{.Title}}</h1>
    <table>{{range .Rows}}<tr>{{range .}}<td class="cell" data-index="{{.Index}}">{{if .Image}}<img src="{{.Image}}" alt="{{.Title}}">{{end}}<span class="title">{{.Title}}</span></td>{{end}}</tr>{{end}}</table>
  </div>
</body>
</html>`

const fallbackNoticeTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8">{{if .Redirect}}<meta http-equiv="refresh" content="{{.DelaySeconds}};url={{.Redirect}}">{{end}}<title>{{.Title}}</title></head>
<body><div class="notice" role="alert"><h1>{{.Title}}</h1><p class="message">{{.Message}}</p></div></body>
</html>`

const fallbackHomeTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Grid Share</title></head>
<body><h1>Grid Share</h1></body>
</html>`
