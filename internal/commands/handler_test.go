// ABOUTME: Tests for the stamp command handlers
// ABOUTME: Exercises the reply contract with a recording responder and fake asset source

package commands

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/limimin/internal/stamp"
	"github.com/2389/limimin/internal/store"
)

type sent struct {
	kind string // "text", "code" or "file"
	body string
}

type recorder struct {
	out []sent
	err error
}

func (r *recorder) Reply(ctx context.Context, text string) error {
	r.out = append(r.out, sent{"text", text})
	return r.err
}

func (r *recorder) ReplyCode(ctx context.Context, text string) error {
	r.out = append(r.out, sent{"code", text})
	return r.err
}

func (r *recorder) SendFile(ctx context.Context, path string) error {
	r.out = append(r.out, sent{"file", path})
	return r.err
}

func (r *recorder) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, r.out, "nothing was sent")
	return r.out[len(r.out)-1]
}

type fakeAssets struct {
	dir   string
	err   error
	calls []string
}

func (f *fakeAssets) Ensure(ctx context.Context, size stamp.Size, id int) (string, error) {
	f.calls = append(f.calls, size.String()+"/"+stamp.FileName(id))
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(f.dir, size.String(), stamp.FileName(id)), nil
}

type fixture struct {
	h      *Handler
	store  *store.MockStore
	assets *fakeAssets
	pref   *stamp.Preference
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMockStore(),
		assets: &fakeAssets{dir: "/data/limimin"},
		pref:   stamp.NewPreference(stamp.Small),
	}
	f.h = New(Config{
		Store:  f.store,
		Assets: f.assets,
		Pref:   f.pref,
	})
	return f
}

// run sends text from room1 and returns the last thing the handler sent.
func (f *fixture) run(t *testing.T, text string) sent {
	t.Helper()
	return f.runIn(t, "room1", text)
}

func (f *fixture) runIn(t *testing.T, community, text string) sent {
	t.Helper()
	r := &recorder{}
	handled, err := f.h.Handle(context.Background(), Request{Community: community, Sender: "@alice:example.org", Text: text}, r)
	require.NoError(t, err)
	require.True(t, handled, "%q should be handled", text)
	return r.last(t)
}

func TestHandle_IgnoresNonCommands(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"hello there", "", "!", "   ", "!unknown thing", "settings add a 20"} {
		r := &recorder{}
		handled, err := f.h.Handle(context.Background(), Request{Community: "room1", Text: text}, r)
		require.NoError(t, err)
		assert.False(t, handled, "%q", text)
		assert.Empty(t, r.out)
	}
}

func TestAdd(t *testing.T) {
	f := newFixture(t)

	got := f.run(t, "!settings add hello 26")
	assert.Equal(t, sent{"text", "Stamp_026_Icon.png assigned to hello."}, got)

	ref, err := f.store.ResolveStampReference(context.Background(), "room1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Stamp_026_Icon.png", ref)
}

func TestAdd_DuplicateThenDeleteThenReAdd(t *testing.T) {
	f := newFixture(t)

	f.run(t, "!settings add hello 26")
	assert.Equal(t, "That term is already in use.", f.run(t, "!settings add hello 27").body)

	assert.Equal(t, "Term hello deleted.", f.run(t, "!settings del hello").body)
	assert.Equal(t, "Stamp_027_Icon.png assigned to hello.", f.run(t, "!settings add hello 27").body)
}

func TestAdd_Validation(t *testing.T) {
	f := newFixture(t)

	invalidID := "That id is invalid. It must be between 19 and 39."
	invalidTerm := "That term is invalid. It must only contain alpha-numeric characters."

	assert.Equal(t, invalidTerm, f.run(t, "!settings add hi! 20").body)
	assert.Equal(t, invalidID, f.run(t, "!settings add hi 5").body)
	assert.Equal(t, invalidID, f.run(t, "!settings add hi 40").body)
	assert.Equal(t, invalidID, f.run(t, "!settings add hi twenty").body)
	assert.Equal(t, invalidID, f.run(t, "!settings add hi! 99").body, "id is checked first")

	terms, err := f.store.ListTerms(context.Background(), "room1")
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestAdd_BoundaryIDs(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Stamp_019_Icon.png assigned to low.", f.run(t, "!settings add low 19").body)
	assert.Equal(t, "Stamp_039_Icon.png assigned to high.", f.run(t, "!settings add high 39").body)
}

func TestAdd_PersistFailure(t *testing.T) {
	f := newFixture(t)
	f.store.PersistErr = store.ErrPersist

	assert.Equal(t, "Could not save the term list, try again later.", f.run(t, "!settings add hello 26").body)
}

func TestDel(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "That term does not exist.", f.run(t, "!settings del ghost").body)
	assert.Equal(t, "That term is invalid. It must only contain alpha-numeric characters.", f.run(t, "!settings del bad_term").body)
}

func TestList(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, sent{"code", "Term list:\n"}, f.run(t, "!settings list"))

	f.run(t, "!settings add zeta 20")
	f.run(t, "!settings add alpha 21")

	assert.Equal(t, sent{"code", "Term list:\n\talpha\n\tzeta\n"}, f.run(t, "!settings list"))
}

func TestList_CommunityIsolation(t *testing.T) {
	f := newFixture(t)

	f.runIn(t, "room1", "!settings add x 20")

	assert.Equal(t, "Term list:\n", f.runIn(t, "room2", "!settings list").body)
	assert.Equal(t, "That term does not exist.", f.runIn(t, "room2", "!fetch x").body)
}

func TestSize_ToggleTwiceRestores(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Stamp size set to large.", f.run(t, "!settings size").body)
	assert.Equal(t, stamp.Large, f.pref.Get())

	assert.Equal(t, "Stamp size set to small.", f.run(t, "!settings size").body)
	assert.Equal(t, stamp.Small, f.pref.Get())
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	f.run(t, "!settings add hello 26")

	got := f.run(t, "!fetch hello")
	assert.Equal(t, sent{"file", filepath.Join("/data/limimin", "sm", "Stamp_026_Icon.png")}, got)

	// Size preference is shared, not per-room
	f.runIn(t, "room2", "!settings size")
	got = f.run(t, "!fetch hello")
	assert.Equal(t, sent{"file", filepath.Join("/data/limimin", "lg", "Stamp_026_Icon.png")}, got)

	assert.Equal(t, []string{"sm/Stamp_026_Icon.png", "lg/Stamp_026_Icon.png"}, f.assets.calls)
}

func TestFetch_UnknownTerm(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, sent{"text", "That term does not exist."}, f.run(t, "!fetch nope"))
	assert.Empty(t, f.assets.calls)
}

func TestFetch_AssetUnavailable(t *testing.T) {
	f := newFixture(t)
	f.assets.err = errors.New("catalog down")
	f.run(t, "!settings add hello 26")

	assert.Equal(t, sent{"text", "That stamp is not available right now."}, f.run(t, "!fetch hello"))
}

func TestFetch_SendFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.run(t, "!settings add hello 26")

	r := &recorder{err: errors.New("upload failed")}
	handled, err := f.h.Handle(context.Background(), Request{Community: "room1", Text: "!fetch hello"}, r)
	assert.True(t, handled)
	assert.Error(t, err)
}

func TestUsage(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"!settings", "!settings add hello", "!settings frobnicate", "!settings list extra", "!help", "!fetch"} {
		got := f.run(t, text)
		assert.Equal(t, "text", got.kind, text)
		assert.Contains(t, got.body, "!", text)
	}
	assert.Contains(t, f.run(t, "!settings").body, "settings add <term> <id>")
	assert.Equal(t, "Usage: !fetch <term>", f.run(t, "!fetch").body)
}

func TestCustomPrefixAndAliases(t *testing.T) {
	f := newFixture(t)
	f.h = New(Config{Store: f.store, Assets: f.assets, Pref: f.pref, Prefix: "?"})

	assert.Equal(t, "Stamp_026_Icon.png assigned to hello.", f.run(t, "?limiset add hello 26").body)
	assert.Equal(t, "file", f.run(t, "?limi hello").kind)
	assert.Equal(t, "file", f.run(t, "  ?FETCH hello").kind)

	r := &recorder{}
	handled, err := f.h.Handle(context.Background(), Request{Community: "room1", Text: "!fetch hello"}, r)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestWithJSONStore(t *testing.T) {
	s, err := store.NewJSONStore(filepath.Join(t.TempDir(), "terms.json"))
	require.NoError(t, err)

	h := New(Config{Store: s, Assets: &fakeAssets{dir: "/d"}})
	r := &recorder{}
	ctx := context.Background()

	_, err = h.Handle(ctx, Request{Community: "room1", Text: "!settings add hello 26"}, r)
	require.NoError(t, err)
	_, err = h.Handle(ctx, Request{Community: "room1", Text: "!settings list"}, r)
	require.NoError(t, err)

	assert.Equal(t, sent{"code", "Term list:\n\thello\n"}, r.last(t))
}

func TestRenderList(t *testing.T) {
	assert.Equal(t, "Term list:\n", RenderList(nil))
	assert.Equal(t, "Term list:\n\ta\n\tb\n", RenderList([]string{"a", "b"}))
}
