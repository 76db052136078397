package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shhac/wirebench/internal/app"
	"github.com/shhac/wirebench/internal/grpc"
	"github.com/shhac/wirebench/internal/model"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections and their tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.view(cmd, func(a *app.App) error {
				printWorkspace(cmd.OutOrStdout(), a.Workspace())
				return nil
			})
		},
	}
}

func (c *cli) collectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				col, err := a.Workspace().CreateCollection(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created collection %s\n", col.Name())
				return nil
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename <collection> <new-name>",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				col, err := findCollection(a.Workspace(), args[0])
				if err != nil {
					return err
				}
				return col.Rename(args[1])
			})
		},
	}

	var discard bool
	rm := &cobra.Command{
		Use:   "rm <collection>",
		Short: "Delete a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				col, err := findCollection(a.Workspace(), args[0])
				if err != nil {
					return err
				}
				return a.Workspace().DeleteCollection(col, discard)
			})
		},
	}
	rm.Flags().BoolVar(&discard, "discard", false, "Delete the collection's tabs too")

	cmd.AddCommand(add, rename, rm)
	return cmd
}

// tabFlags are the request fields a tab can be created with.
type tabFlags struct {
	collection string
	name       string

	method  string
	url     string
	headers []string
	query   []string
	body    string

	auth         string
	username     string
	password     string
	token        string
	apiKeyHeader string
	apiKey       string

	message string

	descriptor string
	service    string
	rpc        string
	payload    string
	metadata   []string
}

func (c *cli) tabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tab",
		Short: "Manage tabs",
	}

	var f tabFlags
	create := &cobra.Command{
		Use:   "new <http|websocket|grpc>",
		Short: "Create a tab",
		Long: `Create a tab in a collection and select it.

For gRPC tabs --url is the server address and --descriptor a .proto,
.protoset or reflect://host:port source. Without a descriptor the server's
reflection service is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseKind(args[0])
			if err != nil {
				return err
			}
			return c.mutate(cmd, func(a *app.App) error {
				colName := f.collection
				if colName == "" {
					colName = model.DefaultCollectionName
				}
				col, err := findCollection(a.Workspace(), colName)
				if err != nil {
					return err
				}
				tab, err := col.CreateTab(kind)
				if err != nil {
					return err
				}
				if err := f.apply(cmd.Context(), a, tab); err != nil {
					_ = col.CloseTab(tab)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created tab %s (%s) in %s\n", tab.ID(), tab.DisplayLabel(), col.Name())
				return nil
			})
		},
	}
	fl := create.Flags()
	fl.StringVarP(&f.collection, "collection", "c", "", "Collection to add the tab to (default \"Default\")")
	fl.StringVarP(&f.name, "name", "n", "", "Tab name")
	fl.StringVarP(&f.method, "method", "X", "", "HTTP method")
	fl.StringVarP(&f.url, "url", "u", "", "URL, WebSocket URL or gRPC address")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "HTTP header (key=value), can be repeated")
	fl.StringArrayVarP(&f.query, "query", "q", nil, "Query parameter (key=value), can be repeated")
	fl.StringVarP(&f.body, "body", "d", "", "HTTP request body")
	fl.StringVar(&f.auth, "auth", "", "Auth kind: none, basic, bearer or apikey")
	fl.StringVar(&f.username, "user", "", "Basic auth user")
	fl.StringVar(&f.password, "password", "", "Basic auth password")
	fl.StringVar(&f.token, "token", "", "Bearer token")
	fl.StringVar(&f.apiKeyHeader, "api-key-header", "", "API key header (default X-API-Key)")
	fl.StringVar(&f.apiKey, "api-key", "", "API key value")
	fl.StringVarP(&f.message, "message", "m", "", "WebSocket message sent after connecting")
	fl.StringVar(&f.descriptor, "descriptor", "", "gRPC descriptor source")
	fl.StringVar(&f.service, "service", "", "gRPC service")
	fl.StringVar(&f.rpc, "rpc", "", "gRPC method")
	fl.StringVar(&f.payload, "payload", "", "gRPC request JSON")
	fl.StringArrayVar(&f.metadata, "metadata", nil, "gRPC metadata (key=value), can be repeated")

	mv := &cobra.Command{
		Use:   "mv <tab> <collection>",
		Short: "Move a tab to another collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				tab, err := findTab(a.Workspace(), args[0])
				if err != nil {
					return err
				}
				to, err := findCollection(a.Workspace(), args[1])
				if err != nil {
					return err
				}
				return a.Workspace().MoveTab(tab, tab.Collection(), to)
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <tab>",
		Short: "Close a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				tab, err := findTab(a.Workspace(), args[0])
				if err != nil {
					return err
				}
				return tab.Collection().CloseTab(tab)
			})
		},
	}

	cmd.AddCommand(create, mv, rm)
	return cmd
}

// apply writes the flags that belong to tab's kind.
func (f tabFlags) apply(ctx context.Context, a *app.App, tab *model.Tab) error {
	if f.name != "" {
		if err := tab.SetName(f.name); err != nil {
			return err
		}
	}
	switch tab.Kind() {
	case model.KindHTTP:
		return f.applyHTTP(tab.HTTP())
	case model.KindWebSocket:
		tab.WebSocket().SetTarget(f.url)
		tab.WebSocket().SetPendingMessage(f.message)
	case model.KindGRPC:
		call := tab.GRPC()
		call.SetTarget(f.url)
		call.SetDescriptorSource(f.descriptor)
		call.SetRequestPayload(f.payload)
		if err := appendPairs(call.Metadata(), f.metadata); err != nil {
			return err
		}
		if f.service == "" && f.rpc == "" {
			return nil
		}
		if err := a.Controller().LoadDescriptor(ctx, tab, descriptorFor(call, "")); err != nil {
			return err
		}
		return selectRPC(a, tab, f.service, f.rpc)
	}
	return nil
}

func (f tabFlags) applyHTTP(x *model.HTTPExchange) error {
	m, err := model.ParseMethod(f.method)
	if err != nil {
		return err
	}
	if m != "" {
		if err := x.SetMethod(m); err != nil {
			return err
		}
	}
	x.SetBaseTarget(f.url)
	x.SetBody(f.body)
	if err := appendPairs(x.Headers(), f.headers); err != nil {
		return err
	}
	if err := appendPairs(x.Query(), f.query); err != nil {
		return err
	}

	kind, err := model.ParseAuthKind(f.auth)
	if err != nil {
		return err
	}
	auth := x.Auth()
	auth.SetBasic(f.username, f.password)
	auth.SetToken(f.token)
	auth.SetAPIKey(f.apiKeyHeader, f.apiKey)
	return auth.SetKind(kind)
}

func appendPairs(bag *model.FieldBag, pairs []string) error {
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("%q is not key=value", p)
		}
		if err := bag.Append(strings.TrimSpace(k), v, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) sendCmd() *cobra.Command {
	var (
		timeout time.Duration
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <tab>",
		Short: "Send a tab's request and print the response",
		Long: `Send a tab's request and print the response. The tab is selected and the
workspace saved with the result.

WebSocket tabs connect, send their pending message and print the
transcript once the peer closes or --wait elapses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				tab, err := findTab(a.Workspace(), args[0])
				if err != nil {
					return err
				}
				if err := tab.Collection().Select(tab); err != nil {
					return err
				}

				limit := timeout
				if tab.Kind() == model.KindWebSocket {
					limit = wait
				}
				ctx := cmd.Context()
				if limit > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, limit)
					defer cancel()
				}

				if err := a.Send(ctx, tab); err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), tab)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the request after this long")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "How long a WebSocket session stays open")
	return cmd
}

func (c *cli) grpcCmd() *cobra.Command {
	var service, rpc string
	cmd := &cobra.Command{
		Use:   "grpc",
		Short: "Inspect gRPC descriptor sources",
	}

	describe := &cobra.Command{
		Use:   "describe <source>",
		Short: "List the services and methods of a descriptor source",
		Long: `List the services and methods of a .proto file, a .protoset file or a
server's reflection service (reflect://host:port).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.view(cmd, func(a *app.App) error {
				catalog, err := a.GRPC().Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printServices(cmd.OutOrStdout(), catalog.Describe())
				return nil
			})
		},
	}

	load := &cobra.Command{
		Use:   "load <tab> [source]",
		Short: "Load a descriptor into a gRPC tab",
		Long: `Load a descriptor into a gRPC tab so its service and method are checked
against what the source offers. Without a source the tab's own descriptor
source, or reflection on its target, is used.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.mutate(cmd, func(a *app.App) error {
				tab, err := findTab(a.Workspace(), args[0])
				if err != nil {
					return err
				}
				if tab.Kind() != model.KindGRPC {
					return fmt.Errorf("tab %q is not a gRPC tab", args[0])
				}
				var source string
				if len(args) == 2 {
					source = args[1]
				}
				if err := a.Controller().LoadDescriptor(cmd.Context(), tab, descriptorFor(tab.GRPC(), source)); err != nil {
					return err
				}
				if err := selectRPC(a, tab, service, rpc); err != nil {
					return err
				}
				for _, svc := range tab.GRPC().DiscoveredServices() {
					fmt.Fprintln(cmd.OutOrStdout(), svc)
				}
				return nil
			})
		},
	}

	load.Flags().StringVar(&service, "service", "", "Service to select after loading")
	load.Flags().StringVar(&rpc, "rpc", "", "Method to select after loading")

	cmd.AddCommand(describe, load)
	return cmd
}

// descriptorFor picks the source to load into call: source when given,
// else the call's own descriptor, else reflection on its target.
func descriptorFor(call *model.GRPCCall, source string) string {
	if source == "" {
		source = call.DescriptorSource()
	}
	if source == "" && call.Target() != "" {
		source = grpc.ReflectScheme + call.Target()
	}
	return source
}

// selectRPC selects service and then rpc from the loaded catalog. Empty
// names leave the current selection alone.
func selectRPC(a *app.App, tab *model.Tab, service, rpc string) error {
	if service != "" {
		if err := a.Controller().SelectService(tab, service); err != nil {
			return err
		}
	}
	if rpc != "" {
		return a.Controller().SelectMethod(tab, rpc)
	}
	return nil
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		limit    int
		clearAll bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent request attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.view(cmd, func(a *app.App) error {
				if clearAll {
					return a.History().ClearHistory()
				}
				entries, err := a.History().GetHistory(limit)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all history")
	return cmd
}
