package providers

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// WireFormat identifies the request/response shape a provider speaks.
type WireFormat string

const (
	WireOpenAI    WireFormat = "openai"
	WireAnthropic WireFormat = "anthropic"
	WireGoogle    WireFormat = "google"
)

// AuthPlacement says where the API key travels.
type AuthPlacement string

const (
	AuthBearer AuthPlacement = "bearer" // Authorization: Bearer <key>
	AuthHeader AuthPlacement = "header" // <AuthHeader>: <key>
	AuthQuery  AuthPlacement = "query"  // ?<AuthHeader>=<key>
)

// ProfileSpec is the mutable input used to build a ProviderProfile.
// It is also the YAML shape of user-defined profiles.
type ProfileSpec struct {
	ID            string            `yaml:"id" json:"id"`
	DisplayName   string            `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	Wire          WireFormat        `yaml:"wire" json:"wire"`
	BaseEndpoint  string            `yaml:"baseEndpoint" json:"baseEndpoint"`
	DefaultModel  string            `yaml:"defaultModel,omitempty" json:"defaultModel,omitempty"`
	AuthHeader    string            `yaml:"authHeader,omitempty" json:"authHeader,omitempty"`
	AuthPlacement AuthPlacement     `yaml:"authPlacement,omitempty" json:"authPlacement,omitempty"`
	ExtraHeaders  map[string]string `yaml:"extraHeaders,omitempty" json:"extraHeaders,omitempty"`
	Keywords      []string          `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// ProviderProfile describes one provider endpoint. It is read-only once
// built: accessors return copies, and overrides produce a new profile.
type ProviderProfile struct {
	id            string
	displayName   string
	wire          WireFormat
	base          string
	defaultModel  string
	authHeader    string
	authPlacement AuthPlacement
	extraHeaders  map[string]string
	keywords      []string
}

// NewProfile validates spec and fills wire-format auth defaults.
func NewProfile(spec ProfileSpec) (ProviderProfile, error) {
	if spec.ID == "" {
		return ProviderProfile{}, fmt.Errorf("profile id is empty")
	}
	if spec.BaseEndpoint == "" {
		return ProviderProfile{}, fmt.Errorf("profile %s: base endpoint is empty", spec.ID)
	}

	placement, header := spec.AuthPlacement, spec.AuthHeader
	switch spec.Wire {
	case WireOpenAI:
		placement = orDefault(placement, AuthBearer)
	case WireAnthropic:
		placement = orDefault(placement, AuthHeader)
		if header == "" && placement == AuthHeader {
			header = "x-api-key"
		}
	case WireGoogle:
		placement = orDefault(placement, AuthQuery)
	default:
		return ProviderProfile{}, fmt.Errorf("profile %s: unknown wire format %q", spec.ID, spec.Wire)
	}
	switch placement {
	case AuthBearer:
		if header == "" {
			header = "Authorization"
		}
	case AuthQuery:
		if header == "" {
			header = "key"
		}
	case AuthHeader:
		if header == "" {
			return ProviderProfile{}, fmt.Errorf("profile %s: header auth needs authHeader", spec.ID)
		}
	default:
		return ProviderProfile{}, fmt.Errorf("profile %s: unknown auth placement %q", spec.ID, placement)
	}

	return ProviderProfile{
		id:            spec.ID,
		displayName:   spec.DisplayName,
		wire:          spec.Wire,
		base:          strings.TrimRight(spec.BaseEndpoint, "/"),
		defaultModel:  spec.DefaultModel,
		authHeader:    header,
		authPlacement: placement,
		extraHeaders:  maps.Clone(spec.ExtraHeaders),
		keywords:      slices.Clone(spec.Keywords),
	}, nil
}

func mustProfile(spec ProfileSpec) ProviderProfile {
	p, err := NewProfile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

func orDefault(p, def AuthPlacement) AuthPlacement {
	if p == "" {
		return def
	}
	return p
}

func (p ProviderProfile) ID() string                   { return p.id }
func (p ProviderProfile) Wire() WireFormat             { return p.wire }
func (p ProviderProfile) BaseEndpoint() string         { return p.base }
func (p ProviderProfile) DefaultModel() string         { return p.defaultModel }
func (p ProviderProfile) AuthHeader() string           { return p.authHeader }
func (p ProviderProfile) AuthPlacement() AuthPlacement { return p.authPlacement }

// ExtraHeaders returns a copy of the fixed headers sent on every request.
func (p ProviderProfile) ExtraHeaders() map[string]string { return maps.Clone(p.extraHeaders) }

// Label returns the display name, defaulting to the id.
func (p ProviderProfile) Label() string {
	if p.displayName != "" {
		return p.displayName
	}
	return p.id
}

// Spec returns the profile as an editable spec.
func (p ProviderProfile) Spec() ProfileSpec {
	return ProfileSpec{
		ID:            p.id,
		DisplayName:   p.displayName,
		Wire:          p.wire,
		BaseEndpoint:  p.base,
		DefaultModel:  p.defaultModel,
		AuthHeader:    p.authHeader,
		AuthPlacement: p.authPlacement,
		ExtraHeaders:  maps.Clone(p.extraHeaders),
		Keywords:      slices.Clone(p.keywords),
	}
}

// WithBaseEndpoint returns an effective profile pointing at base. The
// receiver is left untouched. An empty base returns p unchanged.
func (p ProviderProfile) WithBaseEndpoint(base string) ProviderProfile {
	if base == "" {
		return p
	}
	out := p
	out.base = strings.TrimRight(base, "/")
	out.extraHeaders = maps.Clone(p.extraHeaders)
	out.keywords = slices.Clone(p.keywords)
	return out
}

// WithExtraHeaders returns an effective profile with headers merged over the
// profile's fixed headers.
func (p ProviderProfile) WithExtraHeaders(headers map[string]string) ProviderProfile {
	if len(headers) == 0 {
		return p
	}
	out := p
	out.extraHeaders = maps.Clone(p.extraHeaders)
	if out.extraHeaders == nil {
		out.extraHeaders = make(map[string]string, len(headers))
	}
	maps.Copy(out.extraHeaders, headers)
	out.keywords = slices.Clone(p.keywords)
	return out
}

// matchesModel reports whether model names this provider by prefix or keyword.
func (p ProviderProfile) matchesModel(model string) bool {
	lower := strings.ToLower(model)
	if prefix, _, ok := strings.Cut(lower, "/"); ok && prefix == p.id {
		return true
	}
	for _, kw := range p.keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
