package importer

import (
	"fmt"

	"github.com/google/uuid"
)

var zeroRecordID uuid.UUID

func errFieldUnknownToTarget(field string) error {
	return fmt.Errorf("field %q is not known to the target environment; stripped from payload", field)
}

func errFieldNotWritable(field string) error {
	return fmt.Errorf("field %q is neither create- nor update-valid on the target; stripped from payload", field)
}

func errRequiredFieldMissing(field string) error {
	return fmt.Errorf("target requires field %q, absent from source schema", field)
}

func errReferenceUnmapped(field string, targetEntity string) error {
	return fmt.Errorf("field %q references %s id not present in the source export", field, targetEntity)
}

func errBulkNotSupported(entity string) error {
	return fmt.Errorf("bulk operation not supported for entity %q", entity)
}

func errNoSchemaForEntity(entity string) error {
	return fmt.Errorf("entity %q present in the bundle but not declared in the schema", entity)
}

func errAmbiguousReference(field string) error {
	return fmt.Errorf("field %q: reference has no lookupentity attribute and is not declared as a reference in the schema", field)
}
