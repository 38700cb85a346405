// Package redistruct maps structured model objects onto a Redis/Valkey
// key-value store. A model is declared once as a Descriptor (fields, typed
// related collections, identifier source, key prefix/suffix) and instantiated
// as Records whose storage keys are derived deterministically from the
// declaration plus the instance identifier.
//
// Persistence is atomic: Save, Destroy and the batch-write variants each run
// as one MULTI/EXEC block against a connection resolved through a layered
// chain (active transaction > scoped override > registered provider >
// cached client > freshly dialed client). SaveIfNotExists uses WATCH-based
// optimistic locking with bounded retry so racing creators of the same key
// produce exactly one winner.
//
// Cross-cutting behaviors (object-identifier generation, expiration policy,
// and similar) are layered on via Feature values installed at definition
// time through the same registration surface the core itself uses:
// RegisterKind for new collection kinds, Descriptor.RegisterFieldType for
// new field categories, and the lifecycle hook slots.
package redistruct
