package objectid

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/redistruct/redistruct"
)

// ExternalFeatureName keys the external-identifier option bag.
const ExternalFeatureName = "external_identifier"

// externalIDLen is the hex length of the derived identifier body.
const externalIDLen = 16

// ExternalID installs a field holding a short identifier derived from the
// object identifier, safe to expose outside the system. Derivation requires
// known provenance: a source value that was loaded or set externally is
// refused, since the derivation is only collision-safe over values this
// process generated.
type ExternalID struct {
	// FieldName is the installed field's name. Default "extid".
	FieldName string
	// SourceField is the object-identifier field to derive from. Default
	// "objid".
	SourceField string
	// Prefix is prepended to the derived value. Default "ext_".
	Prefix string
}

// NewExternal builds the external-identifier feature with defaults.
func NewExternal() *ExternalID {
	return &ExternalID{FieldName: "extid", SourceField: "objid", Prefix: "ext_"}
}

func (f *ExternalID) Name() string { return ExternalFeatureName }

// Install registers the derived field and its generator.
func (f *ExternalID) Install(d *redistruct.Descriptor) error {
	d.AddFeatureOptions(ExternalFeatureName, map[string]any{
		"field":  f.FieldName,
		"source": f.SourceField,
		"prefix": f.Prefix,
	})
	ft := &redistruct.FieldType{
		Name:           f.FieldName,
		AccessorName:   f.FieldName,
		FastWriterName: f.FieldName + "!",
		Category:       redistruct.CategoryExternalIdentifier,
	}
	if err := d.RegisterFieldType(ft); err != nil {
		return err
	}
	tag := redistruct.GeneratorTag("externalid:" + f.SourceField)
	return d.SetFieldGenerator(f.FieldName, f.derive, tag)
}

func (f *ExternalID) derive(r *redistruct.Record) (string, error) {
	src, err := r.Resolve(f.SourceField)
	if err != nil {
		return "", err
	}
	if src == "" {
		return "", redistruct.Error{Code: redistruct.MissingIdentifier,
			UserData: "external identifier requires " + f.SourceField}
	}
	if r.Provenance(f.SourceField) == "" {
		return "", redistruct.Error{Code: redistruct.Unknown,
			UserData: f.SourceField + " has unknown provenance; refusing derivation"}
	}
	sum := sha256.Sum256([]byte(src))
	return f.Prefix + hex.EncodeToString(sum[:])[:externalIDLen], nil
}
