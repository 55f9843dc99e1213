package artifact

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

// schemaFiles maps artifact file names to their embedded schema
var schemaFiles = map[string]string{
	VectorizerFile: "schema/vectorizer.schema.json",
	ClassifierFile: "schema/classifier.schema.json",
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		compiled := make(map[string]*jsonschema.Schema, len(schemaFiles))
		compiler := jsonschema.NewCompiler()
		for file, path := range schemaFiles {
			data, err := schemaFS.ReadFile(path)
			if err != nil {
				schemasErr = fmt.Errorf("failed to read schema %s: %w", path, err)
				return
			}
			if err := compiler.AddResource(path, bytes.NewReader(data)); err != nil {
				schemasErr = fmt.Errorf("failed to add schema %s: %w", path, err)
				return
			}
			sch, err := compiler.Compile(path)
			if err != nil {
				schemasErr = fmt.Errorf("failed to compile schema %s: %w", path, err)
				return
			}
			compiled[file] = sch
		}
		schemas = compiled
	})
	return schemas, schemasErr
}

// readValidated reads path and checks it against the schema for name
func readValidated(path, name string) ([]byte, error) {
	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if err := compiled[name].Validate(doc); err != nil {
		return nil, fmt.Errorf("%s does not match its schema: %w", name, err)
	}
	return data, nil
}
