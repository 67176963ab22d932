package query

import (
	"context"
	"errors"

	"github.com/tbxark/talkform/form"
	"github.com/tbxark/talkform/types"
)

var (
	// ErrNoData means the report tables behind a form are empty.
	ErrNoData = errors.New("no report data")
	// ErrMissingInfo means a slot the query needs is unset.
	ErrMissingInfo = errors.New("missing query information")
	ErrUnsupported = errors.New("unsupported query")
)

// User facing texts for the failures above.
const (
	NoDataMessage      = "No se encontraron datos en la base de datos, para esta consulta."
	MissingInfoMessage = "Falta información en los datos proporcionados. Por favor, verifica la información e inténtalo nuevamente."
	FailedMessage      = "Error al procesar la consulta. Por favor prueba de nuevo."
	NoRowsMessage      = "Lamentablemente, no existen datos para la consulta realizada."
	NoClusterMessage   = "Lamentablemente, no existe ninguna agrupación de ciudades con un comportamiento similar en las condiciones especificadas."
	NoClimateMessage   = "Lamentablemente, no existen datos de búsquedas en las condiciones especificadas."
)

// Result is the answer to a submitted form, one chat message per entry.
type Result struct {
	Messages []string `json:"messages"`
}

// Executor answers a confirmed form from its slots.
type Executor interface {
	Execute(ctx context.Context, spec *form.Spec, slots types.Slots) (*Result, error)
}

// Message returns the text shown to the user when Execute fails with err.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNoData):
		return NoDataMessage
	case errors.Is(err, ErrMissingInfo):
		return MissingInfoMessage
	default:
		return FailedMessage
	}
}

// roles names the slots a form uses for each query parameter. Empty names are unused.
type roles struct {
	Selector    string
	Destination string
	Country     string
	City        string
	Year        string
	Month       string
	Query       string
	Range       string
	Profile     string
	Climate     string
}

var formRoles = map[string]roles{
	"busquedas": {
		Selector: "tipo_consulta", Destination: "destino_b", Country: "origen_pais_b", City: "origen_ciudad_b",
		Year: "anno_b", Month: "date_filter", Query: "consulta",
	},
	"ventana": {
		Selector: "tipo_consulta_v", Destination: "destino_v", Country: "origen_pais_v", City: "origen_ciudad_v",
		Month: "date_filter_v", Query: "consulta_v",
	},
	"cluster": {
		Selector: "tipo_consulta_c", Destination: "destino_c", Year: "anno_c", Month: "date_filter_c",
		Range: "rango_ventana", Profile: "perfil",
	},
	"clima": {
		Selector: "tipo_consulta_cl", Destination: "destino_cl", Country: "origen_pais_cl", City: "origen_ciudad_cl",
		Month: "date_filter_cl", Climate: "clima_cl",
	},
}

// Supports reports whether the executor knows how to answer the form.
func Supports(formName string) bool {
	_, ok := formRoles[formName]
	return ok
}
