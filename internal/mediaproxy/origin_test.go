package mediaproxy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurveys map[string]Survey

func (f fakeSurveys) SurveyInfo(_ context.Context, id string) (Survey, error) {
	s, ok := f[id]
	if !ok {
		return Survey{}, ErrSurveyNotFound
	}
	return s, nil
}

type fakeForms struct {
	got Survey
	err error
}

func (f *fakeForms) ExtendedInfo(_ context.Context, s Survey) (Survey, error) {
	f.got = s
	if f.err != nil {
		return Survey{}, f.err
	}
	s.ManifestURL = s.OpenRosaServer + "/manifest/" + s.OpenRosaID
	return s, nil
}

type fakeManifests struct {
	entries map[string][]ManifestEntry
	err     error
}

func (f *fakeManifests) Manifest(_ context.Context, s Survey) ([]ManifestEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[s.ManifestURL], nil
}

type fakeAttachments map[string]map[string]string

func (f fakeAttachments) Attachments(_ context.Context, id string) (map[string]string, error) {
	a, ok := f[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return a, nil
}

func newFakeOrigin() (*OriginResolver, *fakeForms, *fakeManifests) {
	forms := &fakeForms{}
	manifests := &fakeManifests{entries: map[string][]ManifestEntry{
		"https://ona.example/manifest/widgets": {
			{Filename: "b.jpg", DownloadURL: "https://ona.example/media/b.jpg", Hash: "md5:b"},
			{Filename: "a.jpg", DownloadURL: "https://ona.example/media/a.jpg", Hash: "md5:a"},
			{Filename: "", DownloadURL: "https://ona.example/media/none"},
		},
	}}
	o := &OriginResolver{
		Surveys:   fakeSurveys{"abcd": {OpenRosaServer: "https://ona.example", OpenRosaID: "widgets"}},
		Forms:     forms,
		Manifests: manifests,
		Attachments: fakeAttachments{"inst1": {
			"z.png": "https://ona.example/att/z.png",
			"m.png": "https://ona.example/att/m.png",
		}},
	}
	return o, forms, manifests
}

func TestOriginResolverManifestKeepsOrder(t *testing.T) {
	o, forms, _ := newFakeOrigin()
	opts := HostURLOptions{Auth: &Credentials{Username: "u", Password: "p"}, Cookie: "session=1"}

	entries, err := o.Resolve(context.Background(), ResourceManifest, "abcd", opts)
	require.NoError(t, err)
	assert.Equal(t, []MediaEntry{
		{Filename: "b.jpg", URL: "https://ona.example/media/b.jpg"},
		{Filename: "a.jpg", URL: "https://ona.example/media/a.jpg"},
	}, entries)

	require.NotNil(t, forms.got.Auth)
	assert.Equal(t, "u", forms.got.Auth.Username)
	assert.Equal(t, "session=1", forms.got.Cookie)
}

func TestOriginResolverInstanceSorted(t *testing.T) {
	o, _, _ := newFakeOrigin()

	entries, err := o.Resolve(context.Background(), ResourceInstance, "inst1", HostURLOptions{})
	require.NoError(t, err)
	assert.Equal(t, []MediaEntry{
		{Filename: "m.png", URL: "https://ona.example/att/m.png"},
		{Filename: "z.png", URL: "https://ona.example/att/z.png"},
	}, entries)
}

func TestOriginResolverPropagatesErrors(t *testing.T) {
	o, forms, manifests := newFakeOrigin()
	ctx := context.Background()

	_, err := o.Resolve(ctx, ResourceManifest, "missing", HostURLOptions{})
	assert.ErrorIs(t, err, ErrSurveyNotFound)

	_, err = o.Resolve(ctx, ResourceInstance, "missing", HostURLOptions{})
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	boom := errors.New("connection refused")
	manifests.err = boom
	_, err = o.Resolve(ctx, ResourceManifest, "abcd", HostURLOptions{})
	assert.ErrorIs(t, err, boom)

	forms.err = &OriginStatusError{URL: "https://ona.example/formList", Status: 500}
	_, err = o.Resolve(ctx, ResourceManifest, "abcd", HostURLOptions{})
	assert.ErrorIs(t, err, ErrOrigin)

	_, err = o.Resolve(ctx, ResourceType(7), "abcd", HostURLOptions{})
	assert.Error(t, err)
}
