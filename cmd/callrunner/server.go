package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-call-runner/core"
	"github.com/Swind/go-call-runner/transport/httpcall"
	"github.com/Swind/go-call-runner/transport/sqlcall"
)

type httpProbe struct {
	endpoint *core.Endpoint[*httpcall.Result]
	url      string
}

// prober dispatches the configured health probes through the dispatcher so
// they share pools, timeouts and metrics with regular traffic.
type prober struct {
	client *http.Client
	http   []httpProbe
	db     *core.Endpoint[*sqlcall.Result]
	dbPool *pgxpool.Pool
	logger core.Logger
}

type probeResult struct {
	Route       string  `json:"route"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	Timeout     string  `json:"timeout"`
	QueueTimeMs float64 `json:"queueTimeMs"`
	CallTimeMs  float64 `json:"callTimeMs"`
}

// registerProbeRoutes adds the probe routes to routes before the document is built.
func registerProbeRoutes(routes *core.RouteTable, opts *Options) error {
	for route := range opts.Probes {
		if err := routes.Register(core.MustRouteKey(route)); err != nil {
			return err
		}
	}
	if opts.DatabaseURL != "" {
		if err := routes.Register(core.MustRouteKey(opts.DatabaseRoute)); err != nil {
			return err
		}
	}
	return nil
}

func newProber(d *core.Dispatcher, opts *Options, dbPool *pgxpool.Pool, logger core.Logger) (*prober, error) {
	p := &prober{client: &http.Client{}, dbPool: dbPool, logger: logger}

	routes := make([]string, 0, len(opts.Probes))
	for route := range opts.Probes {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	for _, route := range routes {
		endpoint, err := core.NewEndpoint[*httpcall.Result](d, core.MustRouteKey(route), core.IdentityConverter[*httpcall.Result]{})
		if err != nil {
			return nil, err
		}
		p.http = append(p.http, httpProbe{endpoint: endpoint, url: opts.Probes[route]})
	}

	if dbPool != nil {
		endpoint, err := core.NewEndpoint[*sqlcall.Result](d, core.MustRouteKey(opts.DatabaseRoute), core.IdentityConverter[*sqlcall.Result]{})
		if err != nil {
			return nil, err
		}
		p.db = endpoint
	}
	return p, nil
}

func (p *prober) run(ctx context.Context) []probeResult {
	n := len(p.http)
	if p.db != nil {
		n++
	}
	results := make([]probeResult, n)

	var g errgroup.Group
	for i, probe := range p.http {
		g.Go(func() error {
			resp := probe.endpoint.Call(ctx, httpcall.Get(p.client, probe.url))
			results[i] = newProbeResult(probe.endpoint.Route(), resp.Status(), resp.Err(), resp.Statistic(), probe.endpoint.Configuration())
			return nil
		})
	}
	if p.db != nil {
		g.Go(func() error {
			resp := p.db.Call(ctx, sqlcall.Query(p.dbPool, "SELECT 1 AS ok"))
			results[n-1] = newProbeResult(p.db.Route(), resp.Status(), resp.Err(), resp.Statistic(), p.db.Configuration())
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func newProbeResult(route core.RouteKey, status core.Status, err error, stat *core.RequestStatistic, cfg core.RouteConfiguration) probeResult {
	r := probeResult{
		Route:       route.String(),
		Status:      status.String(),
		Timeout:     cfg.EffectiveTimeOut().String(),
		QueueTimeMs: milliseconds(stat.QueueTime()),
		CallTimeMs:  milliseconds(stat.CallTime()),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (p *prober) handleHealthz(w http.ResponseWriter, r *http.Request) {
	results := p.run(r.Context())
	code := http.StatusOK
	overall := "ok"
	for _, res := range results {
		if res.Status != core.StatusSuccess.String() {
			code = http.StatusServiceUnavailable
			overall = "degraded"
			p.logger.Warn("health probe failed",
				core.F("route", res.Route), core.F("status", res.Status), core.F("error", res.Error))
		}
	}
	writeJSON(w, code, map[string]any{"status": overall, "probes": results})
}

type routeView struct {
	Route   string `json:"route"`
	Pool    string `json:"pool"`
	Timeout string `json:"timeout"`
}

type requestView struct {
	RequestID   string  `json:"requestId"`
	Route       string  `json:"route"`
	Pool        string  `json:"pool"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
	Timeout     string  `json:"timeout"`
	QueueTimeMs float64 `json:"queueTimeMs"`
	CallTimeMs  float64 `json:"callTimeMs"`
	TotalMs     float64 `json:"totalMs"`
	FinishedAt  string  `json:"finishedAt"`
}

// debugHandler serves dispatcher, pool and route snapshots.
func debugHandler(d *core.Dispatcher) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pools", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"dispatcher": d.Stats(),
			"pools":      d.Registry().Stats(),
		})
	})
	mux.HandleFunc("/debug/routes", func(w http.ResponseWriter, r *http.Request) {
		var views []routeView
		for _, cfg := range d.Routes().Routes() {
			v := routeView{Route: cfg.Key.String(), Timeout: cfg.EffectiveTimeOut().String()}
			if pool, err := d.Registry().Resolve(cfg.Key); err == nil {
				v.Pool = pool.Name()
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, views)
	})
	mux.HandleFunc("/debug/requests", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records := d.RecentRequests(limit)
		views := make([]requestView, 0, len(records))
		for _, rec := range records {
			v := requestView{
				RequestID:   rec.RequestID,
				Route:       rec.Route.String(),
				Pool:        rec.Pool,
				Status:      rec.Status.String(),
				Timeout:     rec.Timeout.String(),
				QueueTimeMs: milliseconds(rec.QueueTime),
				CallTimeMs:  milliseconds(rec.CallTime),
				TotalMs:     milliseconds(rec.Total),
				FinishedAt:  rec.FinishedAt.Format(time.RFC3339Nano),
			}
			if rec.Err != nil {
				v.Error = rec.Err.Error()
			}
			views = append(views, v)
		}
		writeJSON(w, http.StatusOK, views)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
