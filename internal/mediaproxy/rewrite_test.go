package mediaproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteReplacesKnownReferences(t *testing.T) {
	media := map[string]string{
		"an%20image%20&lt;with&gt;%20a%20description.jpg": "/-/media/get/0/abcd/an%20image%20%3Cwith%3E%20a%20description.jpg",
		"song.mp3": "/-/media/get/0/abcd/song.mp3",
	}
	doc := Document{
		Form: `<form><img src="jr://images/an%20image%20&lt;with&gt;%20a%20description.jpg" alt="x">` +
			`<audio src="jr://audio/song.mp3"></audio>` +
			`<video src="jr://video/missing.mp4"></video></form>`,
		Model: `<model><instance><data><a src="jr://audio/song.mp3"/>jr://audio/song.mp3</data></instance></model>`,
		Media: media,
	}

	out := RegexpRewriter{}.Rewrite(doc)

	assert.Equal(t, `<form><img src="/-/media/get/0/abcd/an%20image%20%3Cwith%3E%20a%20description.jpg" alt="x">`+
		`<audio src="/-/media/get/0/abcd/song.mp3"></audio>`+
		`<video src="jr://video/missing.mp4"></video></form>`, out.Form)
	assert.Equal(t, `<model><instance><data><a src="/-/media/get/0/abcd/song.mp3"/>jr://audio/song.mp3</data></instance></model>`, out.Model)
}

func TestRewriteLeavesUnknownReferencesVerbatim(t *testing.T) {
	form := `<label><img src="jr://images/unknown%20file.png" data-x='jr://images/a.png'></label>`
	out := RegexpRewriter{}.Rewrite(Document{
		Form:  form,
		Media: map[string]string{"a.png": "/media/get/0/x/a.png"},
	})
	assert.Equal(t, form, out.Form)
}

func TestRewriteWithoutMedia(t *testing.T) {
	doc := Document{Form: `<img src="jr://images/a.png">`, Model: `<m/>`}
	out := RegexpRewriter{}.Rewrite(doc)
	assert.Equal(t, doc.Form, out.Form)
	assert.Equal(t, doc.Model, out.Model)
}

func TestRewriteInsertsFormLogo(t *testing.T) {
	form := `<form><section class="form-logo"></section><h3>Title</h3></form>`

	out := RegexpRewriter{}.Rewrite(Document{
		Form:  form,
		Media: map[string]string{FormLogoFile: "/-/media/get/0/abcd/form_logo.png"},
	})
	assert.Equal(t,
		`<form><section class="form-logo"><img src="/-/media/get/0/abcd/form_logo.png" alt="form logo"></section><h3>Title</h3></form>`,
		out.Form)

	out = RegexpRewriter{}.Rewrite(Document{
		Form:  form,
		Media: map[string]string{"other.png": "/-/media/get/0/abcd/other.png"},
	})
	assert.Equal(t, form, out.Form)
}

func TestRewriteLogoWithoutPlaceholder(t *testing.T) {
	form := `<form><h3>Title</h3></form>`
	out := RegexpRewriter{}.Rewrite(Document{
		Form:  form,
		Media: map[string]string{FormLogoFile: "/x/form_logo.png"},
	})
	assert.Equal(t, form, out.Form)
}
