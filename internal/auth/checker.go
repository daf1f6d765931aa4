package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/gigsync/internal/observability/logger"
)

// Checker decide si un token habilita a userID. Devuelve nil o ErrInvalidStoreToken.
type Checker interface {
	Check(ctx context.Context, userID int64, token string) error
	Revoke(token string)
}

// AllowAll acepta cualquier token; solo para desarrollo y tests.
type AllowAll struct{}

func (AllowAll) Check(context.Context, int64, string) error { return nil }
func (AllowAll) Revoke(string)                              {}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// TableChecker confirma cada token contra GET {table_url}table/check/{token}
// y lo cachea por su timeout, renovándolo en cada uso.
type TableChecker struct {
	tableURL string
	client   httpDoer
	timeout  time.Duration
	cache    *gocache.Cache
	sf       singleflight.Group
	log      *zap.Logger
}

// NewTableChecker crea el checker. tableURL debe terminar en "/".
func NewTableChecker(tableURL string, client httpDoer, checkTimeout time.Duration, log *zap.Logger) *TableChecker {
	if client == nil {
		client = &http.Client{}
	}
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &TableChecker{
		tableURL: tableURL,
		client:   client,
		timeout:  checkTimeout,
		cache:    gocache.New(gocache.NoExpiration, time.Minute),
		log:      logger.OrNop(log).Named("auth"),
	}
}

func (c *TableChecker) Check(ctx context.Context, userID int64, token string) error {
	tok, err := ParseStoreToken(token)
	if err != nil {
		return err
	}
	if tok.UserID != userID {
		return ErrInvalidStoreToken.WithMessage("Invalid `store_token`: " + token)
	}

	if _, ok := c.cache.Get(token); ok {
		c.cache.Set(token, struct{}{}, tok.Timeout)
		return nil
	}

	_, err, _ = c.sf.Do(token, func() (any, error) {
		if _, ok := c.cache.Get(token); ok {
			return nil, nil
		}
		if err := c.tableCheck(ctx, token); err != nil {
			return nil, err
		}
		c.cache.Set(token, struct{}{}, tok.Timeout)
		return nil, nil
	})
	return err
}

func (c *TableChecker) tableCheck(ctx context.Context, token string) error {
	invalid := ErrInvalidStoreToken.WithMessage("Invalid `store_token`: " + token)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	target := strings.TrimSuffix(c.tableURL, "/") + "/table/check/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return invalid.WithCause(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("table check failed", logger.Err(err))
		return invalid.WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return invalid
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.OK {
		return invalid
	}
	return nil
}

// Revoke olvida el token; el próximo uso vuelve a consultar la tabla.
func (c *TableChecker) Revoke(token string) {
	c.cache.Delete(token)
}
