package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"golang.org/x/time/rate"
)

// ErrKeySetUnavailable is returned when no signing keys could be loaded
// from the JWKS endpoint.
var ErrKeySetUnavailable = errors.New("JWKS unavailable")

// Tokens naming an unknown kid refresh the set at most once per interval.
// Callers over the limit give up after unknownKIDWait.
const (
	unknownKIDInterval = 5 * time.Minute
	unknownKIDWait     = time.Second
	jwksFetchTimeout   = 10 * time.Second
)

// keySet holds the signing keys published at a JWKS endpoint. The keys are
// fetched once on creation and refreshed in the background every CacheTTL.
type keySet struct {
	keyfunc keyfunc.Keyfunc
	cancel  context.CancelFunc
}

func newKeySet(cfg Config) (*keySet, error) {
	ctx, cancel := context.WithCancel(context.Background())

	remote, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    cfg.HTTPClient,
		Ctx:                       ctx,
		HTTPTimeout:               jwksFetchTimeout,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.CacheTTL,
		RefreshErrorHandler:       refreshErrorHandler(cfg.Logger, cfg.JWKSURL),
		ValidateOptions:           jwkset.JWKValidateOptions{SkipAll: true},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating JWKS storage: %w", err)
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{cfg.JWKSURL: remote},
		RateLimitWaitMax:  unknownKIDWait,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(unknownKIDInterval), 1),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating JWKS client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating JWKS keyfunc: %w", err)
	}

	return &keySet{keyfunc: kf, cancel: cancel}, nil
}

func refreshErrorHandler(logger *slog.Logger, url string) func(context.Context, error) {
	return func(_ context.Context, err error) {
		logger.Warn("JWKS refresh failed", "url", url, "error", err)
	}
}

// available reports whether any signing key has been loaded.
func (s *keySet) available(ctx context.Context) bool {
	keys, err := s.keyfunc.Storage().KeyReadAll(ctx)
	return err == nil && len(keys) > 0
}

// close stops the background refresh.
func (s *keySet) close() { s.cancel() }
