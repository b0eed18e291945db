// Package snapshot stores circuits in a compact msgpack file so that the
// command line tool can read, lower and write them without a textual
// front end.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SchemaVersion is written into every snapshot. Bump the minor version for
// additive fields and the major version for incompatible layout changes.
const SchemaVersion = "1.1.0"

// supportedSchemas is the range of schema versions Decode accepts.
const supportedSchemas = "^1.0.0"

// ErrSchema reports a snapshot written with an unsupported schema.
var ErrSchema = errors.New("unsupported snapshot schema")

func checkSchema(schema string) error {
	if schema == "" {
		return fmt.Errorf("%w: missing version", ErrSchema)
	}
	v, err := semver.NewVersion(schema)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSchema, schema, err)
	}
	c, err := semver.NewConstraint(supportedSchemas)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s, want %s", ErrSchema, v, supportedSchemas)
	}
	return nil
}
