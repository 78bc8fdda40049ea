package crm

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
)

// Route is a fixed upstream endpoint. Template placeholders look like
// {name} and are replaced with query-escaped parameter values.
type Route struct {
	Name     string
	Method   string
	Template string
}

var (
	RouteDocumentTypes = Route{
		Name:     "document types",
		Method:   http.MethodGet,
		Template: "/api/TipoDoc",
	}
	RouteClientByDocument = Route{
		Name:     "client by document",
		Method:   http.MethodGet,
		Template: "/api/cliente/ObtenerPorDocumento?documento={documento}",
	}
	RouteContractByDocument = Route{
		Name:     "contract by document",
		Method:   http.MethodGet,
		Template: "/api/contrato/ObtenerPorDocumento?documento={documento}",
	}
	RouteReasons = Route{
		Name:     "reasons",
		Method:   http.MethodGet,
		Template: "/api/Motivo?Tipo={tipo}",
	}
	RouteSubReasons = Route{
		Name:     "sub-reasons",
		Method:   http.MethodGet,
		Template: "/api/SubMotivo?Tipo={tipo}&Motivo={motivo}",
	}
	RouteCaseForm = Route{
		Name:     "case form",
		Method:   http.MethodPost,
		Template: "/api/RegistroForm",
	}
	RouteAttachment = Route{
		Name:     "attachment",
		Method:   http.MethodPost,
		Template: "/api/adjunto",
	}
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Expand fills the template. A placeholder without a parameter is an error.
func (r Route) Expand(params map[string]string) (string, error) {
	var missing string
	path := placeholder.ReplaceAllStringFunc(r.Template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := params[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return url.QueryEscape(v)
	})
	if missing != "" {
		return "", fmt.Errorf("%s: missing parameter %q", r.Name, missing)
	}
	return path, nil
}
