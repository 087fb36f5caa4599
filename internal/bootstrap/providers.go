package bootstrap

import (
	"fmt"
	"log"

	"github.com/go-connectly/connectly/internal/client"
	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/provider"
)

// initializeProviders constructs the adapter registry from the enabled
// provider list. All adapters share one pooled HTTP client; revocation
// posts additionally go through a retrying wrapper.
func initializeProviders(cfg *config.Config) (map[string]provider.Provider, error) {
	if cfg.OAuthInsecureSkipVerify {
		log.Printf("WARNING: OAuth TLS verification is disabled (OAUTH_INSECURE_SKIP_VERIFY=true)")
	}

	httpClient, err := client.CreateOAuthClient(cfg.OAuthTimeout, cfg.OAuthInsecureSkipVerify)
	if err != nil {
		return nil, err
	}

	var retryPoster provider.RetryPoster
	if cfg.RevokeMaxRetries > 0 {
		retryClient, err := client.CreateRetryClient(httpClient, cfg.RevokeMaxRetries)
		if err != nil {
			return nil, err
		}
		retryPoster = client.NewFormPoster(retryClient)
	}

	providers := make(map[string]provider.Provider, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case "google":
			p := provider.NewGoogleProvider(httpClient)
			p.SetRetryPoster(retryPoster)
			providers[name] = p
		case "github":
			p := provider.NewGitHubProvider(httpClient)
			p.SetRetryPoster(retryPoster)
			providers[name] = p
		case "linkedin":
			p := provider.NewLinkedInProvider(httpClient)
			p.SetRetryPoster(retryPoster)
			providers[name] = p
		case "custom":
			p := provider.NewGenericProvider(provider.CustomEndpoints{
				Name:             cfg.CustomProviderName,
				AuthURL:          cfg.CustomAuthURL,
				TokenURL:         cfg.CustomTokenURL,
				UserInfoURL:      cfg.CustomUserInfoURL,
				RevokeURL:        cfg.CustomRevokeURL,
				ProfileIDField:   cfg.CustomProfileIDField,
				ProfileNameField: cfg.CustomProfileNameField,
			}, httpClient)
			p.SetRetryPoster(retryPoster)
			providers[cfg.CustomProviderName] = p
		default:
			return nil, fmt.Errorf("unknown provider in PROVIDERS: %q", name)
		}
	}

	return providers, nil
}

// logProvidersStatus logs enabled providers
func logProvidersStatus(providers map[string]provider.Provider) {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	if len(names) > 0 {
		log.Printf("OAuth providers enabled: %v", names)
	}
}
