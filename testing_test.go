package redistruct

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

// newTestModel defines a model against a dedicated in-memory server and
// returns both, with client teardown registered.
func newTestModel(t *testing.T, name string, opts ...Option) (*Descriptor, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	opts = append(opts, URI("redis://"+s.Addr()))
	d, err := Define(name, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.CloseClient() })
	return d, s
}

// customerModel is the stock lifecycle fixture: persistent name/email with
// email as identifier, a transient session token, and a visits list.
func customerModel(t *testing.T, extra ...Option) (*Descriptor, *miniredis.Miniredis) {
	t.Helper()
	opts := append([]Option{
		Field("name"),
		Field("email"),
		TransientField("token"),
		IdentifierField("email"),
		List("visits"),
	}, extra...)
	return newTestModel(t, "customer", opts...)
}
