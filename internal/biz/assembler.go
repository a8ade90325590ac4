package biz

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"PuckRelay/internal/conf"
	"PuckRelay/internal/model"
	"PuckRelay/pkg/genai"
	plog "PuckRelay/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInlineVideoFPS   = 1
	DefaultUploadedVideoFPS = 5
)

// MediaPartAssembler turns media items into request parts. Items below the
// provider's inline limit are embedded as base64, larger ones are uploaded
// concurrently and referenced by uri.
type MediaPartAssembler struct {
	inlineVideoFPS   int
	uploadedVideoFPS int
	maxConcurrent    int
	cache            UploadCache
	events           *EventBus
	log              *plog.LogHelper
}

// NewMediaPartAssembler creates an assembler. cache may be nil.
func NewMediaPartAssembler(c *conf.Pipeline, cache UploadCache, events *EventBus, logger log.Logger) *MediaPartAssembler {
	a := &MediaPartAssembler{
		inlineVideoFPS:   DefaultInlineVideoFPS,
		uploadedVideoFPS: DefaultUploadedVideoFPS,
		cache:            cache,
		events:           events,
		log:              plog.NewLogHelper(logger),
	}
	if c != nil {
		if c.InlineVideoFPS > 0 {
			a.inlineVideoFPS = c.InlineVideoFPS
		}
		if c.UploadedVideoFPS > 0 {
			a.uploadedVideoFPS = c.UploadedVideoFPS
		}
		a.maxConcurrent = c.MaxConcurrentUploads
	}
	return a
}

// Assemble returns the media parts in item order followed by the text part.
// Generation must not start before this returns: every upload has finished
// or the whole assembly failed.
func (a *MediaPartAssembler) Assemble(ctx context.Context, cfg ProviderConfig, up Uploader, items []MediaItem, prompt string) ([]genai.Part, error) {
	media, err := a.AssembleMedia(ctx, cfg, up, items)
	if err != nil {
		return nil, err
	}

	parts := make([]genai.Part, 0, len(media)+1)
	for _, m := range media {
		parts = append(parts, m.ToPart())
	}
	return append(parts, genai.Part{Text: prompt}), nil
}

// AssembleMedia classifies and converts items. Oversized items fail before any
// upload starts; the first failed upload cancels the others.
func (a *MediaPartAssembler) AssembleMedia(ctx context.Context, cfg ProviderConfig, up Uploader, items []MediaItem) ([]MediaPart, error) {
	for i, item := range items {
		if size := int64(len(item.Data)); size >= cfg.UploadSizeLimit {
			return nil, ErrUploadFailed("media item %d is %d bytes, provider %s accepts less than %d", i, size, cfg.Identity, cfg.UploadSizeLimit)
		}
	}

	parts := make([]MediaPart, len(items))
	var uploads []int
	for i, item := range items {
		if int64(len(item.Data)) < cfg.InlineSizeLimit {
			parts[i] = a.inline(item)
			continue
		}
		uploads = append(uploads, i)
	}
	if len(uploads) == 0 {
		return parts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.maxConcurrent > 0 {
		g.SetLimit(a.maxConcurrent)
	}
	for _, i := range uploads {
		g.Go(func() error {
			uri, err := a.upload(gctx, ctx, cfg, up, i, items[i])
			if err != nil {
				return err
			}
			parts[i] = a.fileReference(items[i], uri)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (a *MediaPartAssembler) inline(item MediaItem) MediaPart {
	buf := make([]byte, base64.StdEncoding.EncodedLen(len(item.Data)))
	base64.StdEncoding.Encode(buf, item.Data)
	return MediaPart{
		Kind:     PartInlineData,
		MIMEType: mimeTypeOf(item),
		Base64:   string(buf),
		VideoFPS: a.videoFPS(item, a.inlineVideoFPS),
	}
}

func (a *MediaPartAssembler) fileReference(item MediaItem, uri string) MediaPart {
	return MediaPart{
		Kind:     PartFileReference,
		MIMEType: mimeTypeOf(item),
		URI:      uri,
		VideoFPS: a.videoFPS(item, a.uploadedVideoFPS),
	}
}

func (a *MediaPartAssembler) videoFPS(item MediaItem, fallback int) int {
	if item.Role != MediaVideo {
		return 0
	}
	if item.FPS > 0 {
		return item.FPS
	}
	return fallback
}

// upload runs one upload. gctx is cancelled when a sibling fails, parent when
// the caller gives up.
func (a *MediaPartAssembler) upload(gctx, parent context.Context, cfg ProviderConfig, up Uploader, index int, item MediaItem) (string, error) {
	digest := ""
	if a.cache != nil {
		sum := sha256.Sum256(item.Data)
		digest = hex.EncodeToString(sum[:])
		if uri, ok := a.cache.Get(cfg.Identity, digest); ok {
			a.log.Upload(gctx, "reusing uploaded file", "index", index, "uri", uri)
			return uri, nil
		}
	}

	mimeType := mimeTypeOf(item)
	a.events.Publish(gctx, model.EventUploadStarted, cfg.Identity, map[string]any{
		"index": index, "bytes": len(item.Data), "mime_type": mimeType,
	})
	start := time.Now()

	uri, err := up.UploadFile(gctx, item.Data, mimeType)
	if err != nil {
		return "", a.uploadError(gctx, parent, cfg, index, err)
	}

	a.events.Publish(gctx, model.EventUploadFinished, cfg.Identity, map[string]any{
		"index": index, "uri": uri, "duration_ms": time.Since(start).Milliseconds(),
	})
	if a.cache != nil {
		a.cache.Add(cfg.Identity, digest, uri)
	}
	return uri, nil
}

func (a *MediaPartAssembler) uploadError(gctx, parent context.Context, cfg ProviderConfig, index int, err error) error {
	switch {
	case parent.Err() != nil:
		return contextError(parent, 0)
	case errors.Is(err, genai.ErrMissingAPIKey):
		return ErrMissingAPIKey(cfg.Identity)
	case errors.Is(err, genai.ErrInvalidURL):
		return ErrInvalidURL(err.Error())
	case gctx.Err() != nil:
		// a sibling already failed, its error is the one reported
		return ErrUploadFailed("upload of media item %d aborted", index).WithCause(err)
	default:
		return ErrUploadFailed("upload of media item %d failed: %v", index, err).WithCause(err)
	}
}

func mimeTypeOf(item MediaItem) string {
	if item.MIMEType != "" {
		return item.MIMEType
	}
	return item.Role.defaultMIMEType()
}
