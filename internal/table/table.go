// Package table resuelve qué stores forman cada canal.
package table

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/gigsync/internal/errs"
	"github.com/dropDatabas3/gigsync/internal/store"
)

var (
	ErrInvalidURL  = errs.New("TableError:InvalidUrl", "invalid table url")
	ErrServerError = errs.New("TableError:ServerError", "unexpected table response")
)

// Layout es canal -> id de store -> descriptor.
type Layout map[string]map[string]store.Descriptor

// Directory entrega el layout de canales de un usuario.
type Directory interface {
	Channels(ctx context.Context) (Layout, error)
}

// Static es un layout fijo.
type Static Layout

func (s Static) Channels(context.Context) (Layout, error) { return Layout(s), nil }

// InMemory crea canales con un único store local sin respaldo.
func InMemory(names ...string) Static {
	out := Static{}
	for _, n := range names {
		out[n] = map[string]store.Descriptor{"memory": {Type: store.TypeLocal}}
	}
	return out
}

type fileLayout struct {
	Channels Layout `yaml:"channels"`
}

// LoadFile lee un layout YAML de la forma:
//
//	channels:
//	  main:
//	    home: { type: remote, url: "https://gig.example/user/7/", store_token: "store_..." }
//	    disk: { type: local, storage_path: "/var/lib/gig" }
func LoadFile(path string) (Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("table: read %s: %w", path, err)
	}
	var f fileLayout
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("table: parse %s: %w", path, err)
	}
	if f.Channels == nil {
		f.Channels = Layout{}
	}
	return Static(f.Channels), nil
}

// Networked pide el layout a GET {URL}table?session_token=.
type Networked struct {
	URL          string
	SessionToken string
	Client       *http.Client
}

func (n Networked) Channels(ctx context.Context) (Layout, error) {
	u, err := url.Parse(n.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") ||
		u.RawQuery != "" || u.ForceQuery || !strings.HasSuffix(u.Path, "/") {
		return nil, ErrInvalidURL.WithMessage("Invalid `table_url`: " + n.URL)
	}
	target := n.URL + "table?" + url.Values{"session_token": {n.SessionToken}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var env struct {
		Error *errs.Error `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Name != "" {
		return nil, env.Error
	}
	var l Layout
	if resp.StatusCode != http.StatusOK || json.Unmarshal(raw, &l) != nil {
		return nil, ErrServerError.WithMessage("Server Error: " + n.URL)
	}
	return l, nil
}
