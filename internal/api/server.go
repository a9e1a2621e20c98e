// Package api serves the relay's local control surface: health and device
// status, manual gesture triggers, pointer events from an OS hook helper,
// metrics and a gesture event stream. It also wraps the extension WebSocket
// endpoint in the same middleware stack.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/tableap/internal/gesture"
	"github.com/dgnsrekt/tableap/internal/relay"
	"github.com/dgnsrekt/tableap/internal/types"
)

// Service is the slice of the relay the control API drives.
type Service interface {
	Trigger(edge types.Edge) int
	Devices() []relay.DeviceInfo
	Route(ctx context.Context, edge types.Edge, tabs types.TabList) error
	ExtensionCount() int
	PeerCount() int
}

// Options holds the optional collaborators. A nil Detector disables
// /pointer; nil handlers leave /metrics and /events unmounted.
type Options struct {
	Detector *gesture.Detector
	Metrics  http.Handler
	Events   http.Handler
}

type deviceView struct {
	Edge        string    `json:"edge"`
	Address     string    `json:"address"`
	ConnID      string    `json:"conn_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Queued      int       `json:"queued" doc:"Payloads waiting in the device's outbound queue"`
}

type healthOutput struct {
	Body struct {
		Status     string `json:"status"`
		Extensions int    `json:"extensions"`
		Peers      int    `json:"peers"`
		Devices    int    `json:"devices"`
	}
}

type devicesOutput struct {
	Body struct {
		Devices []deviceView `json:"devices"`
	}
}

type gestureInput struct {
	Body struct {
		Edge string `json:"edge" doc:"Screen edge to trigger: left or right"`
	}
}

type gestureOutput struct {
	Body struct {
		Edge      string `json:"edge"`
		Delivered int    `json:"delivered" doc:"Extension connections that received the request"`
	}
}

type routeInput struct {
	Edge string `path:"edge" doc:"Screen edge of the target device"`
	Body struct {
		Tabs []string `json:"tabs" doc:"URLs to open on the device"`
	}
}

type routeOutput struct {
	Body struct {
		Edge string `json:"edge"`
		Tabs int    `json:"tabs"`
	}
}

type pointerInput struct {
	Body gesture.Pointer
}

type pointerOutput struct {
	Body struct {
		Fired     bool   `json:"fired"`
		Edge      string `json:"edge,omitempty"`
		Delivered int    `json:"delivered"`
	}
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger("control"))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("tableap control API", "1.0.0")
	cfg.Info.Description = "Local control surface of the tableap relay: device status, gesture triggers and pointer events."
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	docs, err := renderDocs(cfg)
	if err != nil {
		slog.Error("docs page render failed", "error", err)
	}
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(docs); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}
	if opts.Events != nil {
		router.Handle("/events", opts.Events)
	}

	registerStatusHandlers(api, svc)
	registerGestureHandlers(api, svc, opts.Detector)

	return router
}

// NewExtensionRouter mounts the extension WebSocket handler at every path so
// extensions may connect to the bare host:port.
func NewExtensionRouter(h http.Handler) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger("extension"))
	router.Use(middleware.Recoverer)
	router.Handle("/*", h)
	return router
}

func registerStatusHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Extensions = svc.ExtensionCount()
			out.Body.Peers = svc.PeerCount()
			out.Body.Devices = len(svc.Devices())
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-devices", Method: http.MethodGet, Path: "/devices", Summary: "List registered peer devices", Tags: []string{"Status"}},
		func(ctx context.Context, input *struct{}) (*devicesOutput, error) {
			out := &devicesOutput{}
			out.Body.Devices = []deviceView{}
			for _, d := range svc.Devices() {
				out.Body.Devices = append(out.Body.Devices, deviceView{
					Edge:        d.Edge.String(),
					Address:     d.Address,
					ConnID:      d.ID,
					ConnectedAt: d.ConnectedAt,
					Queued:      len(d.Outbound),
				})
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "send-tabs", Method: http.MethodPost, Path: "/devices/{edge}/tabs", Summary: "Send a tab list straight to a device", Tags: []string{"Status"}},
		func(ctx context.Context, input *routeInput) (*routeOutput, error) {
			edge, err := types.ParseEdge(input.Edge)
			if err != nil {
				return nil, mapErr(err)
			}
			if err := svc.Route(ctx, edge, input.Body.Tabs); err != nil {
				return nil, mapErr(err)
			}
			out := &routeOutput{}
			out.Body.Edge = edge.String()
			out.Body.Tabs = len(input.Body.Tabs)
			return out, nil
		})
}

func registerGestureHandlers(api huma.API, svc Service, detector *gesture.Detector) {
	huma.Register(api, huma.Operation{OperationID: "trigger-gesture", Method: http.MethodPost, Path: "/gestures", Summary: "Trigger a gesture for an edge", Tags: []string{"Gestures"}},
		func(ctx context.Context, input *gestureInput) (*gestureOutput, error) {
			edge, err := types.ParseEdge(input.Body.Edge)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &gestureOutput{}
			out.Body.Edge = edge.String()
			out.Body.Delivered = svc.Trigger(edge)
			return out, nil
		})

	if detector == nil {
		return
	}
	huma.Register(api, huma.Operation{OperationID: "feed-pointer", Method: http.MethodPost, Path: "/pointer", Summary: "Feed a pointer event to the gesture detector", Tags: []string{"Gestures"}},
		func(ctx context.Context, input *pointerInput) (*pointerOutput, error) {
			edge, fired, err := detector.Feed(input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &pointerOutput{}
			if fired {
				out.Body.Fired = true
				out.Body.Edge = edge.String()
				out.Body.Delivered = svc.Trigger(edge)
			}
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, types.ErrUnknownEdge), errors.Is(err, gesture.ErrInvalidPointer):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, relay.ErrNoDevice):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, relay.ErrDeviceBusy), errors.Is(err, relay.ErrDeviceGone):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}
