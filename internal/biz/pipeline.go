package biz

import (
	"context"
	"strings"

	"PuckRelay/internal/conf"
	"PuckRelay/pkg/genai"
)

// MediaRole classifies a media item.
type MediaRole string

const (
	MediaImage MediaRole = "image"
	MediaAudio MediaRole = "audio"
	MediaVideo MediaRole = "video"
)

// defaultMIMEType is used when the client did not name one.
func (r MediaRole) defaultMIMEType() string {
	switch r {
	case MediaVideo:
		return "video/mp4"
	case MediaAudio:
		return "audio/mpeg"
	default:
		return "image/jpeg"
	}
}

// MediaItem is one piece of binary media attached to a request.
type MediaItem struct {
	Data     []byte
	MIMEType string
	Role     MediaRole
	// FPS is the sampling rate inferred by the client, 0 when unknown.
	FPS int
}

// PartKind tags a MediaPart.
type PartKind int

const (
	PartInlineData PartKind = iota
	PartFileReference
)

// MediaPart is an assembled media item: inline base64 data or a reference to
// an uploaded file.
type MediaPart struct {
	Kind     PartKind
	MIMEType string
	Base64   string // PartInlineData
	URI      string // PartFileReference
	VideoFPS int    // 0 for non-video parts
}

// ToPart converts to the wire representation.
func (p MediaPart) ToPart() genai.Part {
	var part genai.Part
	switch p.Kind {
	case PartFileReference:
		part.FileData = &genai.FileData{MIMEType: p.MIMEType, FileURI: p.URI}
	default:
		part.InlineData = &genai.Blob{MIMEType: p.MIMEType, Data: p.Base64}
	}
	if p.VideoFPS > 0 {
		part.VideoMetadata = &genai.VideoMetadata{FPS: p.VideoFPS}
	}
	return part
}

// ProviderConfig is the immutable definition of one backend.
type ProviderConfig struct {
	Identity        string
	BaseURL         string
	UploadURL       string
	AuthMethod      string
	APIKey          string
	Model           string
	ImageModel      string
	InlineSizeLimit int64
	UploadSizeLimit int64
}

// NewProviderConfig copies a configuration block. apiKey is passed separately
// because it may have been decrypted.
func NewProviderConfig(p *conf.Provider, apiKey string) ProviderConfig {
	cfg := ProviderConfig{
		Identity:        p.Identity,
		BaseURL:         p.BaseURL,
		UploadURL:       p.UploadURL,
		AuthMethod:      p.AuthMethod,
		APIKey:          apiKey,
		Model:           p.Model,
		ImageModel:      p.ImageModel,
		InlineSizeLimit: p.InlineSizeLimit,
		UploadSizeLimit: p.UploadSizeLimit,
	}
	if cfg.InlineSizeLimit <= 0 {
		cfg.InlineSizeLimit = conf.DefaultInlineSizeLimit
	}
	if cfg.UploadSizeLimit <= 0 {
		cfg.UploadSizeLimit = conf.DefaultUploadSizeLimit
	}
	return cfg
}

// ModelFor returns the model serving kind.
func (c ProviderConfig) ModelFor(kind ResponseKind) string {
	if kind == ResponseImage && c.ImageModel != "" {
		return c.ImageModel
	}
	return c.Model
}

// Uploader sends a file to the provider's file API and returns its uri.
type Uploader interface {
	UploadFile(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ProviderTransport is the wire client of one provider.
// Implemented by *genai.Client.
type ProviderTransport interface {
	Uploader
	GenerateContent(ctx context.Context, model string, req *genai.GenerateContentRequest) ([]byte, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
	HasAPIKey() bool
}

// ProviderEndpoint pairs a provider's configuration with its transport.
type ProviderEndpoint struct {
	Config    ProviderConfig
	Transport ProviderTransport
}

// ProviderEndpoints holds the configured backends. Secondary may be nil.
type ProviderEndpoints struct {
	Primary   *ProviderEndpoint
	Secondary *ProviderEndpoint
}

// UploadCache remembers uris of files already uploaded to a provider.
type UploadCache interface {
	Get(provider, digest string) (string, bool)
	Add(provider, digest, uri string)
}

// ResponseKind selects what the executor extracts from a response.
type ResponseKind int

const (
	ResponseText ResponseKind = iota
	ResponseImage
)

func (k ResponseKind) String() string {
	if k == ResponseImage {
		return "image"
	}
	return "text"
}

// AnalysisPayload is one logical request before provider-specific assembly.
type AnalysisPayload struct {
	Prompt           string
	Media            []MediaItem
	Kind             ResponseKind
	Temperature      *float64
	MaxOutputTokens  int
	ResponseMIMEType string
}

// GenerateResult is the outcome of a successful logical request.
type GenerateResult struct {
	Provider      string
	Text          string
	Image         []byte
	ImageMIMEType string
	Attempts      int
	FellBack      bool
}

// buildRequest wraps assembled parts into a generateContent request.
func buildRequest(parts []genai.Part, payload *AnalysisPayload) *genai.GenerateContentRequest {
	req := &genai.GenerateContentRequest{
		Contents: []genai.Content{{Role: "user", Parts: parts}},
	}

	gc := &genai.GenerationConfig{
		Temperature:      payload.Temperature,
		MaxOutputTokens:  payload.MaxOutputTokens,
		ResponseMIMEType: payload.ResponseMIMEType,
	}
	if payload.Kind == ResponseImage {
		gc.ResponseModalities = []string{genai.ModalityImage}
		gc.ResponseMIMEType = ""
	}
	if gc.Temperature != nil || gc.MaxOutputTokens > 0 || gc.ResponseMIMEType != "" || len(gc.ResponseModalities) > 0 {
		req.GenerationConfig = gc
	}
	return req
}

// needsMediaTimeout reports whether req carries an uploaded file or video.
// Small inline images and audio are served within the text timeout.
func needsMediaTimeout(req *genai.GenerateContentRequest) bool {
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			switch {
			case p.FileData != nil, p.VideoMetadata != nil:
				return true
			case p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "video/"):
				return true
			}
		}
	}
	return false
}
