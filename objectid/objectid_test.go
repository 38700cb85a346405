package objectid_test

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/redistruct/redistruct"
	"github.com/redistruct/redistruct/objectid"
)

func newModel(t *testing.T, opts ...redistruct.Option) *redistruct.Descriptor {
	t.Helper()
	s := miniredis.RunT(t)
	opts = append(opts, redistruct.URI("redis://"+s.Addr()))
	d, err := redistruct.Define("ticket", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.CloseClient() })
	return d
}

func TestObjectIdentifierGeneratedLazily(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New()))

	r, err := d.New("name", "Ada")
	require.NoError(t, err)
	require.False(t, r.IsSet("objid"))

	id, err := r.Resolve("objid")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, objectid.TagUUIDv7, r.Provenance("objid"))

	again, err := r.Resolve("objid")
	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestObjectIdentifierUniquePerRecord(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New()))

	a, _ := d.New()
	b, _ := d.New()
	idA, err := a.Resolve("objid")
	require.NoError(t, err)
	idB, err := b.Resolve("objid")
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)
}

func TestAsIdentifierRoutesRecordKeys(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New(objectid.AsIdentifier())))
	require.Equal(t, "objid", d.IdentifierFieldName())
	ctx := context.Background()

	r, _ := d.New("name", "Ada")
	ok, err := r.Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	id, err := r.Identifier()
	require.NoError(t, err)
	loaded, err := d.FindByIdentifier(ctx, id)
	require.NoError(t, err)
	name, _ := loaded.Get("name")
	require.Equal(t, "Ada", name)
}

func TestCustomGeneratorAndTag(t *testing.T) {
	tag := redistruct.GeneratorTag("objectid:seq")
	n := 0
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New(
			objectid.WithFieldName("seq"),
			objectid.WithGenerator(tag, func() (string, error) {
				n++
				return "seq-1", nil
			}))))

	r, _ := d.New()
	v, err := r.Resolve("seq")
	require.NoError(t, err)
	require.Equal(t, "seq-1", v)
	require.Equal(t, tag, r.Provenance("seq"))
	require.Equal(t, 1, n)
}

func TestExternalSetDropsProvenance(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New()))

	r, _ := d.New()
	_, err := r.Resolve("objid")
	require.NoError(t, err)
	require.NotEmpty(t, r.Provenance("objid"))

	require.NoError(t, r.Set("objid", "forged"))
	require.Empty(t, r.Provenance("objid"))
}

func TestExternalIDDerivation(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New()),
		redistruct.WithFeature(objectid.NewExternal()))

	r, _ := d.New()
	ext, err := r.Resolve("extid")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ext, "ext_"))
	require.Len(t, ext, len("ext_")+16)

	again, err := r.Resolve("extid")
	require.NoError(t, err)
	require.Equal(t, ext, again)
}

func TestExternalIDRefusesForeignSource(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New()),
		redistruct.WithFeature(objectid.NewExternal()))

	r, _ := d.New()
	require.NoError(t, r.Set("objid", "came-from-outside"))
	_, err := r.Resolve("extid")
	require.Error(t, err)
}

func TestExternalIDRefusesLoadedSource(t *testing.T) {
	d := newModel(t,
		redistruct.Field("name"),
		redistruct.WithFeature(objectid.New(objectid.AsIdentifier())),
		redistruct.WithFeature(objectid.NewExternal()))
	ctx := context.Background()

	r, _ := d.New("name", "Ada")
	ok, err := r.Save(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	id, err := r.Identifier()
	require.NoError(t, err)

	loaded, err := d.FindByIdentifier(ctx, id)
	require.NoError(t, err)
	require.Empty(t, loaded.Provenance("objid"))
	_, err = loaded.Resolve("extid")
	require.Error(t, err)
}
