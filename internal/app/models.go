package app

import "github.com/nulpointcorp/apibridge/internal/schema"

// WeatherUnified is a sample response model a connector can opt into via
// response_model: WeatherUnified in its policy entry. It exists to give
// C11 something real to validate against out of the box; operators
// embedding apibridge with their own connectors register their own models
// here the same way.
type WeatherUnified struct {
	TempC    float64 `json:"temp_c"`
	Humidity float64 `json:"humidity,omitempty"`
	Provider string  `json:"provider"`
}

// registerModels populates r with every response model this build knows
// about. A connector's response_model only gets validated when its name
// appears here — an unregistered name is a no-op, not a drift.
func registerModels(r *schema.Registry) {
	r.Register("WeatherUnified", WeatherUnified{})
}
