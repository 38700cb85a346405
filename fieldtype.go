package redistruct

import "log/slog"

// Category determines how a field takes part in serialization and lifecycle.
type Category int

const (
	// CategoryPersistent fields round-trip to storage.
	CategoryPersistent Category = iota
	// CategoryTransient fields never reach storage and reset to unset on
	// every refresh.
	CategoryTransient
	// CategoryIdentifier marks the field that names the record.
	CategoryIdentifier
	// CategoryEncrypted fields persist whatever an encryption feature put in
	// them; the core treats them as opaque persistent values.
	CategoryEncrypted
	// CategoryObjectIdentifier fields hold a lazily generated internal
	// identifier with tracked provenance.
	CategoryObjectIdentifier
	// CategoryExternalIdentifier fields hold a value derived from the object
	// identifier for exposure outside the system.
	CategoryExternalIdentifier
)

// persists reports whether values of this category are written to storage.
func (c Category) persists() bool {
	return c != CategoryTransient
}

// ConflictPolicy governs what happens when a generated accessor name collides
// with an already-claimed one.
type ConflictPolicy int

const (
	// ConflictRaise fails the definition with MethodConflict. The default.
	ConflictRaise ConflictPolicy = iota
	// ConflictSkip leaves the existing claim in place and installs nothing.
	ConflictSkip
	// ConflictWarn logs the collision and then replaces the claim.
	ConflictWarn
	// ConflictOverwrite replaces the claim silently.
	ConflictOverwrite
)

// FieldType describes one scalar field of a model. Immutable once registered
// on a descriptor; redefine the field to change it.
type FieldType struct {
	// Name is the field's storage name within the record hash.
	Name string
	// AccessorName routes Descriptor.ResolveAccessor / Record.Access calls to
	// this field. Empty suppresses the accessor (write-only or externally
	// managed fields).
	AccessorName string
	// FastWriterName is the claimed name of the storage-direct accessor pair
	// (FastWrite/FastRead). Empty suppresses it.
	FastWriterName string
	// Conflict is the policy applied when a claimed name collides.
	Conflict ConflictPolicy
	// Category classifies the field for serialization and lifecycle.
	Category Category

	frozen bool
}

// install claims the field's accessor names in the descriptor's claimed-name
// registry, applying the configured conflict policy, then freezes the value.
// Collisions are detected here, at registration time, so a feature layering
// accessors over an earlier definition fails fast instead of at first use.
func (ft *FieldType) install(d *Descriptor) error {
	names := make([]string, 0, 2)
	if ft.AccessorName != "" {
		names = append(names, ft.AccessorName)
	}
	if ft.FastWriterName != "" {
		names = append(names, ft.FastWriterName)
	}
	for _, n := range names {
		owner, taken := d.claimed[n]
		if !taken {
			d.claimed[n] = ft.Name
			continue
		}
		switch ft.Conflict {
		case ConflictRaise:
			return Error{Code: MethodConflict,
				UserData: "accessor " + n + " already claimed by field " + owner}
		case ConflictSkip:
			// Existing claim stays routed to its original field.
		case ConflictWarn:
			slog.Warn("accessor redefined", "accessor", n, "previous", owner, "field", ft.Name)
			d.claimed[n] = ft.Name
		case ConflictOverwrite:
			d.claimed[n] = ft.Name
		}
	}
	ft.frozen = true
	return nil
}
