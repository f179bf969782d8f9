package mediaproxy

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrSurveyNotFound   = errors.New("survey not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// SurveyInfoProvider maps an opaque survey id to its origin coordinates.
type SurveyInfoProvider interface {
	SurveyInfo(ctx context.Context, surveyID string) (Survey, error)
}

// FormInfoProvider completes a survey with origin form metadata, at least
// its manifest URL.
type FormInfoProvider interface {
	ExtendedInfo(ctx context.Context, s Survey) (Survey, error)
}

// ManifestProvider lists a form's media files in origin order.
type ManifestProvider interface {
	Manifest(ctx context.Context, s Survey) ([]ManifestEntry, error)
}

// AttachmentProvider lists the files attached to a submitted instance.
type AttachmentProvider interface {
	Attachments(ctx context.Context, instanceID string) (map[string]string, error)
}

// OriginResolver fetches the full media set of one resource. It does not
// retry; collaborator errors are returned wrapped.
type OriginResolver struct {
	Surveys     SurveyInfoProvider
	Forms       FormInfoProvider
	Manifests   ManifestProvider
	Attachments AttachmentProvider
}

func (o *OriginResolver) Resolve(ctx context.Context, rt ResourceType, resourceID string, opts HostURLOptions) ([]MediaEntry, error) {
	switch rt {
	case ResourceManifest:
		return o.resolveManifest(ctx, resourceID, opts)
	case ResourceInstance:
		return o.resolveInstance(ctx, resourceID)
	default:
		return nil, fmt.Errorf("unknown resource type %d", int(rt))
	}
}

func (o *OriginResolver) resolveManifest(ctx context.Context, surveyID string, opts HostURLOptions) ([]MediaEntry, error) {
	survey, err := o.Surveys.SurveyInfo(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("survey %q: %w", surveyID, err)
	}
	survey.Auth = opts.Auth
	survey.Cookie = opts.Cookie

	survey, err = o.Forms.ExtendedInfo(ctx, survey)
	if err != nil {
		return nil, fmt.Errorf("form info %q: %w", surveyID, err)
	}
	manifest, err := o.Manifests.Manifest(ctx, survey)
	if err != nil {
		return nil, fmt.Errorf("manifest %q: %w", surveyID, err)
	}

	out := make([]MediaEntry, 0, len(manifest))
	for _, m := range manifest {
		if m.Filename == "" || m.DownloadURL == "" {
			continue
		}
		out = append(out, MediaEntry{Filename: m.Filename, URL: m.DownloadURL})
	}
	return out, nil
}

func (o *OriginResolver) resolveInstance(ctx context.Context, instanceID string) ([]MediaEntry, error) {
	atts, err := o.Attachments.Attachments(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", instanceID, err)
	}
	out := make([]MediaEntry, 0, len(atts))
	for name, u := range atts {
		out = append(out, MediaEntry{Filename: name, URL: u})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}
