package davclient

import (
	"log/slog"
	"net/http"

	"github.com/cyp0633/davcal/internal/config"
	"github.com/cyp0633/davcal/internal/credentials"
	"github.com/cyp0633/davcal/internal/httpclient"
)

// FromConfig builds an authenticated client from cfg. provider supplies the
// credential on every request.
func FromConfig(cfg *config.Config, provider credentials.Provider, logger *slog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport := httpclient.NewBasicAuthTransport(provider, http.DefaultTransport, logger)
	hc, err := httpclient.New(&http.Client{Transport: transport, Timeout: cfg.Timeout}, cfg.ServerURL, logger)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithLogger(logger),
		WithParallelQueries(cfg.ParallelQueries),
		WithFreeBusyFallback(cfg.FreeBusyFallbackStatuses...),
		WithAttachmentPolicy(AttachmentPolicy{
			AllowedExtensions: cfg.Attachments.AllowedExtensions,
			Root:              cfg.Attachments.Root,
			SensitivePatterns: cfg.Attachments.SensitivePatterns,
			MaxBytes:          cfg.Attachments.MaxBytes,
		}),
	}
	return New(hc, cfg.ServerURL, append(base, opts...)...)
}
