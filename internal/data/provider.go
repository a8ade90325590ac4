package data

import (
	"fmt"

	"PuckRelay/internal/biz"
	"PuckRelay/internal/conf"
	"PuckRelay/pkg/crypto"
	"PuckRelay/pkg/genai"

	"github.com/go-kratos/kratos/v2/log"
)

// NewProviderEndpoints builds a wire client for every configured provider.
// API keys carrying the "enc:" prefix are decrypted with Providers.EncryptionKey.
func NewProviderEndpoints(c *conf.Providers, logger log.Logger) (*biz.ProviderEndpoints, error) {
	if c == nil || c.Primary == nil {
		return nil, fmt.Errorf("primary provider is not configured")
	}
	helper := log.NewHelper(logger)

	var cipher *crypto.Cipher
	if c.EncryptionKey != "" {
		var err error
		cipher, err = crypto.NewCipher(c.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
	}

	primary, err := newProviderEndpoint(c.Primary, cipher)
	if err != nil {
		return nil, err
	}
	endpoints := &biz.ProviderEndpoints{Primary: primary}

	if c.Secondary.Configured() {
		endpoints.Secondary, err = newProviderEndpoint(c.Secondary, cipher)
		if err != nil {
			return nil, err
		}
	}

	for _, ep := range []*biz.ProviderEndpoint{endpoints.Primary, endpoints.Secondary} {
		if ep == nil {
			continue
		}
		if !ep.Transport.HasAPIKey() {
			helper.Warnw("msg", "provider has no API key, requests will fail", "provider", ep.Config.Identity)
		}
		helper.Infow("msg", "provider configured",
			"provider", ep.Config.Identity,
			"model", ep.Config.Model,
			"auth_method", ep.Config.AuthMethod)
	}

	return endpoints, nil
}

func newProviderEndpoint(p *conf.Provider, cipher *crypto.Cipher) (*biz.ProviderEndpoint, error) {
	apiKey, err := crypto.ResolveSecret(p.APIKey, cipher)
	if err != nil {
		return nil, fmt.Errorf("provider %s: failed to decrypt api key: %w", p.Identity, err)
	}

	cfg := biz.NewProviderConfig(p, apiKey)
	client, err := genai.NewClient(genai.Config{
		BaseURL:    cfg.BaseURL,
		UploadURL:  cfg.UploadURL,
		AuthMethod: cfg.AuthMethod,
		APIKey:     apiKey,
		ProxyURL:   p.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Identity, err)
	}

	return &biz.ProviderEndpoint{Config: cfg, Transport: client}, nil
}
