package ingest

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/mizanhq/mizan/pkg/finance"
	"github.com/mizanhq/mizan/pkg/protocol"
)

// ParseStatement decodes the nested financial statement map. Decoding
// is weakly typed so integer leaves, numeric period labels, and
// comma-grouped amount strings all land in the typed sections.
func ParseStatement(data []byte) (*finance.Statement, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, protocol.InvalidUpload("malformed statement JSON: %s", err.Error())
	}

	var stmt finance.Statement
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       groupedAmountHook,
		Result:           &stmt,
	})
	if err != nil {
		return nil, fmt.Errorf("building statement decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, protocol.InvalidUpload("statement does not match the expected shape: %s", err.Error())
	}

	if stmt.Periods.Current == "" || stmt.Periods.Prior == "" {
		return nil, protocol.InvalidUpload("statement is missing periods.current or periods.prior")
	}
	if stmt.Empty() {
		return nil, protocol.InvalidUpload("statement carries no line items")
	}
	return &stmt, nil
}

// groupedAmountHook lets "1,200,000" style string leaves decode as
// floats; plain numeric strings are left to the weak decoder.
func groupedAmountHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Float64 {
		return data, nil
	}
	return parseAmount(data.(string))
}
