package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/gigsync/internal/errs"
	"github.com/dropDatabas3/gigsync/internal/metrics"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
	"github.com/dropDatabas3/gigsync/internal/reducer"
)

var (
	ErrInvalidURL  = errs.New("StoreError:InvalidUrl", "invalid store url")
	ErrOplogError  = errs.New("StoreError:OplogError", "unexpected oplog response")
	ErrStreamError = errs.New("StoreError:StreamError", "unexpected stream response")
)

const maxResponseBytes = 16 << 20

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// RemoteError es un error devuelto por el servidor en la forma {"error":{"name","message"}}.
// errors.Is lo compara por nombre contra los sentinelas locales.
type RemoteError struct {
	StoreID string
	Status  int
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("store %s: %s: %s (http %d)", e.StoreID, e.Name, e.Message, e.Status)
}

func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*errs.Error)
	return ok && t.Name == e.Name
}

// ValidateURL exige http/https, sin query y con path terminado en "/".
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL.WithMessage("Invalid URL: " + raw).WithCause(err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return nil, ErrInvalidURL.WithMessage("Invalid URL protocol: " + raw)
	case u.Host == "":
		return nil, ErrInvalidURL.WithMessage("Invalid URL host: " + raw)
	case u.RawQuery != "" || u.ForceQuery:
		return nil, ErrInvalidURL.WithMessage("Invalid URL query: " + raw)
	case !strings.HasSuffix(u.Path, "/"):
		return nil, ErrInvalidURL.WithMessage("Invalid URL path (must end with /): " + raw)
	}
	return u, nil
}

// Remote es un store cuyo respaldo es el endpoint de oplogs de un servidor.
// Start arranca el long polling que reinyecta en Push lo que el servidor entrega.
type Remote struct {
	*engine
	base   *url.URL
	token  string
	client httpDoer

	retryBackoff   time.Duration
	requestTimeout time.Duration
	pollTimeout    time.Duration

	mu     sync.Mutex
	regID  string
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	killOnce  sync.Once
}

// NewRemote valida rawURL y crea el store. El long polling no arranca hasta Start.
func NewRemote(id string, reg *reducer.Registry, rawURL, storeToken string, opts ...Option) (*Remote, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	if o.client == nil {
		o.client = &http.Client{}
	}
	r := &Remote{
		engine:         newEngine(id, reg, o.log.Named("store.remote")),
		base:           u,
		token:          storeToken,
		client:         o.client,
		retryBackoff:   o.retryBackoff,
		requestTimeout: o.requestTimeout,
		pollTimeout:    o.pollTimeout,
	}
	r.fetch = r.fetchOplog
	r.propagate = r.postOplog
	return r, nil
}

// URL devuelve la URL base del servidor.
func (r *Remote) URL() string { return r.base.String() }

// RegID devuelve el registro de long polling vigente ("" antes del primer poll).
func (r *Remote) RegID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regID
}

func (r *Remote) endpoint(p string, q url.Values) string {
	u := *r.base
	u.Path = r.base.Path + p
	u.RawPath = ""
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *Remote) tupleQuery(typ, path string) url.Values {
	return url.Values{"type": {typ}, "path": {path}, "store_token": {r.token}}
}

// call hace el request y decodifica out. Un cuerpo {"error":...} es RemoteError;
// cualquier otra respuesta inesperada es protoErr.
func (r *Remote) call(ctx context.Context, timeout time.Duration, method, target string, body, out any, protoErr *errs.Error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	var env struct {
		Error *struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		return &RemoteError{StoreID: r.id, Status: resp.StatusCode, Name: env.Error.Name, Message: env.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return protoErr.WithMessage(method + " " + req.URL.Path + ": http " + strconv.Itoa(resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return protoErr.WithCause(err)
	}
	return nil
}

func (r *Remote) fetchOplog(ctx context.Context, typ, path string) (oplog.Oplog, error) {
	var l oplog.Oplog
	if err := r.call(ctx, r.requestTimeout, http.MethodGet, r.endpoint("oplog", r.tupleQuery(typ, path)), nil, &l, ErrOplogError); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Remote) postOplog(ctx context.Context, typ, path string, op oplog.Op) {
	var out struct {
		OK bool `json:"ok"`
	}
	err := r.call(ctx, r.requestTimeout, http.MethodPost, r.endpoint("oplog", r.tupleQuery(typ, path)), op, &out, ErrOplogError)
	if err == nil && !out.OK {
		err = ErrOplogError.WithMessage("push not acknowledged")
	}
	if err != nil {
		metrics.StorePersistErrors.WithLabelValues(r.id).Inc()
		r.log.Warn("upstream push failed",
			logger.TupleType(typ), logger.TuplePath(path), logger.SHA(op.SHA), logger.Err(err))
	}
}

func (r *Remote) poll(ctx context.Context) (oplog.Batch, error) {
	q := url.Values{"store_token": {r.token}}
	if id := r.RegID(); id != "" {
		q.Set("reg_id", id)
	}
	var b oplog.Batch
	err := r.call(ctx, r.pollTimeout, http.MethodGet, r.endpoint("oplog/stream", q), nil, &b, ErrStreamError)
	return b, err
}

// Start arranca el long polling. Llamadas posteriores no hacen nada.
func (r *Remote) Start() {
	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		r.cancel = cancel
		r.done = make(chan struct{})
		r.mu.Unlock()
		go r.loop(ctx)
	})
}

func (r *Remote) loop(ctx context.Context) {
	defer close(r.done)
	for ctx.Err() == nil {
		b, err := r.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Warn("long poll failed", logger.Err(err))
			t := time.NewTimer(r.retryBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}

		if b.RegID != "" {
			r.mu.Lock()
			r.regID = b.RegID
			r.mu.Unlock()
		}
		for _, e := range b.Stream {
			if _, _, err := r.Push(ctx, e.Type, e.Path, e.Op); err != nil {
				r.log.Warn("stream push failed",
					logger.TupleType(e.Type), logger.TuplePath(e.Path), logger.SHA(e.Op.SHA), logger.Err(err))
			}
		}
	}
}

// Kill detiene el long polling, aborta el request en curso y espera la
// propagación pendiente.
func (r *Remote) Kill(ctx context.Context) error {
	var err error
	r.killOnce.Do(func() {
		r.subs.clear()
		r.mu.Lock()
		cancel, done := r.cancel, r.done
		r.mu.Unlock()
		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				err = ctx.Err()
				return
			}
		}
		err = r.drain(ctx)
	})
	return err
}
