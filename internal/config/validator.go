// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// `Load` calls validateStruct right after unmarshalling the merged Koanf
// tree.  Any failure aborts startup, so the binary never runs with a
// malformed listen address, a zero submit delay, or a Kafka broker list
// without a topic.  Cross-field rules that tags cannot express live in
// validateStruct itself.

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var v = validator.New()

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Forms.MaxFillTime > 0 && c.Forms.MinFillTime > c.Forms.MaxFillTime {
		return fmt.Errorf("forms.min_fill_time (%s) exceeds forms.max_fill_time (%s)",
			c.Forms.MinFillTime, c.Forms.MaxFillTime)
	}
	return nil
}
