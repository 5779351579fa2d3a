package geometry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed featurecollection.schema.json
var featureCollectionSchema string

var compiledSchema = sync.OnceValue(func() *jsonschema.Schema {
	return jsonschema.MustCompileString("featurecollection.schema.json", featureCollectionSchema)
})

// Validate checks that raw is a GeoJSON FeatureCollection with well-formed
// features. It is stricter than Compute, which skips bad features silently;
// use it at the upload boundary.
func Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("geometry: invalid json: %w", err)
	}
	if err := compiledSchema().Validate(doc); err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	return nil
}
