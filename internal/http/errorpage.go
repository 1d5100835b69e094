package http

import (
	"html/template"
	"net/http"
)

// errorTmpl es la página para errores fatales de /authorize, donde no se
// puede redirigir de vuelta al client.
var errorTmpl = template.Must(template.New("error").Parse(`<!doctype html>
<html>
<head><title>Authorization error</title></head>
<body>
<h1>Authorization error</h1>
<p><strong>{{.Error}}</strong></p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
</body>
</html>
`))

func errorPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := struct {
		Error       string
		Description string
	}{
		Error:       q.Get("error"),
		Description: q.Get("error_description"),
	}
	if data.Error == "" {
		data.Error = "invalid_request"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_ = errorTmpl.Execute(w, data)
}
