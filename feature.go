package redistruct

// Feature is a pluggable unit of cross-cutting model behavior installed onto
// a descriptor at definition time. Installation may register field types,
// attach lifecycle hooks, and read/write the feature's own option bag; the
// core never branches on feature names.
type Feature interface {
	Name() string
	Install(*Descriptor) error
}

// FeatureFunc adapts a plain function into a Feature.
type FeatureFunc struct {
	FeatureName string
	InstallFunc func(*Descriptor) error
}

func (f FeatureFunc) Name() string { return f.FeatureName }

func (f FeatureFunc) Install(d *Descriptor) error { return f.InstallFunc(d) }
