// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/petmal/codegrade/pkg/utils"
	"gopkg.in/yaml.v3"
)

// ErrCompileSchema indicates that the worksheet schema could not be generated.
var ErrCompileSchema = errors.New("failed to compile worksheet schema")

// WorksheetJSONSchema is the JSON schema of worksheet files, generated from the Worksheet type.
var WorksheetJSONSchema = sync.OnceValue(func() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:              "yaml",
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(Worksheet{})
	schema.Title = "CodeGrade worksheet"
	return schema
})

// WorksheetJSONSchemaRaw is the worksheet schema in generic map form.
var WorksheetJSONSchemaRaw = sync.OnceValue(func() map[string]interface{} {
	schemaBytes, err := json.Marshal(WorksheetJSONSchema())
	if err != nil {
		panic(fmt.Errorf("%w: %v", ErrCompileSchema, err))
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		panic(fmt.Errorf("%w: %v", ErrCompileSchema, err))
	}

	return schemaMap
})

// ValidateWorksheetDocument checks raw worksheet file contents against the worksheet schema.
func ValidateWorksheetDocument(contents []byte) error {
	var document interface{}
	if err := yaml.Unmarshal(contents, &document); err != nil {
		return fmt.Errorf("malformed worksheet file: %w", err)
	}
	return utils.ValidateAgainstSchema(WorksheetJSONSchemaRaw(), document)
}
