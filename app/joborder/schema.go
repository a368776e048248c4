package joborder

import (
	"github.com/invopop/jsonschema"
)

// Schema describes Record as JSON schema. Only serial, client and item are required,
// id and creation time are assigned on create.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{RequiredFromJSONSchemaTags: true, DoNotReference: true}
	schema := r.Reflect(&Record{})
	schema.Title = "Job Order"
	schema.Description = "Job order record, id and createdAt are assigned by the server and ignored on POST /api/job-orders"
	for _, name := range []string{"id", "createdAt"} {
		if prop, ok := schema.Properties.Get(name); ok {
			prop.ReadOnly = true
		}
	}
	return schema
}
