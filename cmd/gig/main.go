// gig es la CLI de los canales: lee y empuja valores, lista canales y stores
// e inspecciona store_tokens.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dropDatabas3/gigsync/internal/auth"
	_ "github.com/dropDatabas3/gigsync/internal/blob/adapters/fs"
	_ "github.com/dropDatabas3/gigsync/internal/blob/adapters/pg"
	_ "github.com/dropDatabas3/gigsync/internal/blob/adapters/redis"
	"github.com/dropDatabas3/gigsync/internal/channel"
	"github.com/dropDatabas3/gigsync/internal/client"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/reducer"
	"github.com/dropDatabas3/gigsync/internal/store"
	"github.com/dropDatabas3/gigsync/internal/table"
)

type options struct {
	tablePath    string
	tableURL     string
	sessionToken string
	reducers     []string
	out          string
	logLevel     string
	timeout      time.Duration
}

func main() {
	o := &options{
		tablePath:    os.Getenv("GIG_TABLE"),
		tableURL:     os.Getenv("GIG_TABLE_URL"),
		sessionToken: os.Getenv("GIG_SESSION_TOKEN"),
		out:          envOr("GIG_OUT", "text"),
		logLevel:     envOr("LOG_LEVEL", "warn"),
	}

	root := &cobra.Command{
		Use:           "gig",
		Short:         "CLI de canales replicados",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logger.Config{Env: "dev", Level: o.logLevel, ServiceName: "gig"})
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.tablePath, "table", o.tablePath, "archivo YAML con el layout de canales (env GIG_TABLE)")
	pf.StringVar(&o.tableURL, "table-url", o.tableURL, "URL del servicio de tabla, terminada en / (env GIG_TABLE_URL)")
	pf.StringVar(&o.sessionToken, "session-token", o.sessionToken, "session token para --table-url (env GIG_SESSION_TOKEN)")
	pf.StringSliceVar(&o.reducers, "reducer", nil, "type=reducer extra (counter|lww), repetible")
	pf.StringVar(&o.out, "out", o.out, "formato de salida: json|text")
	pf.StringVar(&o.logLevel, "log-level", o.logLevel, "nivel de log")
	pf.DurationVar(&o.timeout, "timeout", 30*time.Second, "timeout por comando")

	root.AddCommand(
		channelsCmd(o),
		storesCmd(o),
		getCmd(o),
		pushCmd(o),
		watchCmd(o),
		tokenCmd(o),
	)

	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (o *options) directory() (table.Directory, error) {
	switch {
	case o.tablePath != "":
		return table.LoadFile(o.tablePath)
	case o.tableURL != "":
		return table.Networked{URL: o.tableURL, SessionToken: o.sessionToken, Client: &http.Client{Timeout: o.timeout}}, nil
	}
	return nil, fmt.Errorf("falta --table o --table-url")
}

func (o *options) registry() (*reducer.Registry, error) {
	reg := reducer.Builtins()
	for _, kv := range o.reducers {
		typ, name, ok := strings.Cut(kv, "=")
		if !ok || typ == "" {
			return nil, fmt.Errorf("--reducer %q: se espera type=reducer", kv)
		}
		r, ok := reducer.ByName(name)
		if !ok {
			return nil, fmt.Errorf("--reducer %q: reducer desconocido %q", kv, name)
		}
		reg.Register(typ, r)
	}
	return reg, nil
}

// open arma el cliente; quien llama tiene que hacer Kill.
func (o *options) open() (*client.Client, error) {
	dir, err := o.directory()
	if err != nil {
		return nil, err
	}
	reg, err := o.registry()
	if err != nil {
		return nil, err
	}
	return client.New(dir,
		client.WithRegistry(reg),
		client.WithLogger(logger.L()),
		client.WithStoreOptions(store.WithHTTPClient(&http.Client{})),
	), nil
}

// withClient corre fn con un cliente inicializado y lo mata al final,
// esperando las escrituras pendientes.
func (o *options) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := o.open()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	defer func() {
		kctx, kcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer kcancel()
		if err := c.Kill(kctx); err != nil {
			logger.L().Warn("kill failed", logger.Err(err))
		}
	}()
	if err := c.Init(ctx); err != nil {
		return err
	}
	return fn(ctx, c)
}

func (o *options) print(v any) error {
	if o.out == "json" {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	switch t := v.(type) {
	case string:
		fmt.Println(t)
	case []string:
		for _, s := range t {
			fmt.Println(s)
		}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
	}
	return nil
}

func channelsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "Lista los canales del layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				names, err := c.Channels(ctx)
				if err != nil {
					return err
				}
				return o.print(names)
			})
		},
	}
}

func storesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stores <channel>",
		Short: "Lista los stores de un canal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := o.directory()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			layout, err := dir.Channels(ctx)
			if err != nil {
				return err
			}
			descs, ok := layout[args[0]]
			if !ok {
				return client.ErrUnknownChannel.WithMessage("Unknown channel: " + args[0])
			}
			if o.out == "json" {
				return o.print(descs)
			}
			ids := make([]string, 0, len(descs))
			for id := range descs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			lines := make([]string, 0, len(ids))
			for _, id := range ids {
				d := descs[id]
				where := d.URL
				if d.Type != store.TypeRemote {
					where = d.StoragePath
					if d.Driver != "" {
						where = d.Driver + ":" + where
					}
					if where == "" {
						where = "(memory)"
					}
				}
				typ := d.Type
				if typ == "" {
					typ = store.TypeLocal
				}
				lines = append(lines, fmt.Sprintf("%s\t%s\t%s", id, typ, where))
			}
			return o.print(lines)
		},
	}
}

func getCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <channel> <type> <path>",
		Short: "Lee el valor de una tupla",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				v, err := c.Get(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return o.print(v)
			})
		},
	}
}

func pushCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "push <channel> <type> <path> <json>",
		Short: "Empuja un payload y muestra el valor resultante",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if err := json.Unmarshal([]byte(args[3]), &payload); err != nil {
				return fmt.Errorf("payload no es JSON válido: %w", err)
			}
			return o.withClient(cmd, func(ctx context.Context, c *client.Client) error {
				v, err := c.Push(ctx, args[0], args[1], args[2], payload)
				if err != nil {
					return err
				}
				return o.print(v)
			})
		},
	}
}

func watchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <channel>",
		Short: "Muestra los cambios que llegan a un canal hasta Ctrl-C",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.open()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer func() {
				kctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = c.Kill(kctx)
			}()

			unsubscribe, err := c.On(ctx, args[0], func(u channel.Update) {
				if err := o.print(u); err != nil {
					logger.L().Warn("print failed", zap.Error(err))
				}
			})
			if err != nil {
				return err
			}
			defer unsubscribe()
			<-ctx.Done()
			return nil
		},
	}
}

func tokenCmd(o *options) *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Utilidades de store_token"}
	tok.AddCommand(&cobra.Command{
		Use:   "parse <store_token>",
		Short: "Valida la forma de un store_token y muestra sus partes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := auth.ParseStoreToken(args[0])
			if err != nil {
				return err
			}
			view := map[string]any{
				"user_id":  t.UserID,
				"created":  t.Created.UTC().Format(time.RFC3339),
				"timeout":  t.Timeout.String(),
				"store_id": t.StoreID,
				"expired":  time.Now().After(t.Created.Add(t.Timeout)),
			}
			if o.out != "json" {
				return o.print(fmt.Sprintf("user=%d store=%s created=%s timeout=%s expired=%v",
					t.UserID, t.StoreID, view["created"], view["timeout"], view["expired"]))
			}
			return o.print(view)
		},
	})
	return tok
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
