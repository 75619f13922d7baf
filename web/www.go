// Package web provides a JSON over HTTP API to control and monitor the runner cutter.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	goutils "go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/services/runnercutter"
	"go.viam.com/runnercutter/utils"
)

// maxRequestBytes bounds the body of any control request.
const maxRequestBytes = 1 << 20

// Options are used for configuring the web server.
type Options struct {
	// Address is the host:port to listen on.
	Address string
	// Pprof turns on the pprof profiler accessible at /debug
	Pprof bool
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func toPoint(p r2.Point) point {
	return point{X: p.X, Y: p.Y}
}

func (p point) r2() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

type addCalibrationPointsRequest struct {
	NormalizedPixelCoords []point `json:"normalized_pixel_coords"`
}

type manualTargetAimLaserRequest struct {
	NormalizedPixelCoord *point `json:"normalized_pixel_coord"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type trackResponse struct {
	ID              int    `json:"id"`
	NormalizedPixel point  `json:"normalized_pixel"`
	State           string `json:"state"`
}

type stateResponse struct {
	Calibrated        bool            `json:"calibrated"`
	State             string          `json:"state"`
	Tracks            []trackResponse `json:"tracks"`
	SessionID         string          `json:"session_id,omitempty"`
	Correspondences   int             `json:"correspondences"`
	ReprojectionError float64         `json:"reprojection_error"`
}

func toStateResponse(st runnercutter.Status) stateResponse {
	resp := stateResponse{
		Calibrated:        st.Calibrated,
		State:             string(st.State),
		Tracks:            make([]trackResponse, 0, len(st.Tracks)),
		SessionID:         st.SessionID,
		Correspondences:   st.Correspondences,
		ReprojectionError: st.ReprojectionError,
	}
	for _, track := range st.Tracks {
		resp.Tracks = append(resp.Tracks, trackResponse{
			ID:              track.ID,
			NormalizedPixel: toPoint(track.NormalizedPixel),
			State:           track.State.String(),
		})
	}
	return resp
}

type controlServer struct {
	svc    runnercutter.Service
	logger logging.Logger
}

func (s *controlServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debugw("failed to write response", "error", err)
	}
}

// writeResult reports the outcome of a control call. Calls the state machine refuses are
// reported as a conflict so the caller knows to retry later.
func (s *controlServer) writeResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, resultResponse{Success: true})
	case errors.Is(err, utils.ErrRejectedByState):
		s.writeJSON(w, http.StatusConflict, resultResponse{Error: err.Error()})
	default:
		s.writeJSON(w, http.StatusInternalServerError, resultResponse{Error: err.Error()})
	}
}

func (s *controlServer) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		s.writeJSON(w, http.StatusBadRequest, resultResponse{Error: errors.Wrap(err, "invalid request body").Error()})
		return false
	}
	return true
}

func (s *controlServer) calibrate(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.svc.Calibrate(r.Context()))
}

func (s *controlServer) addCalibrationPoints(w http.ResponseWriter, r *http.Request) {
	var req addCalibrationPointsRequest
	if !s.decode(w, r, &req) {
		return
	}
	pixels := make([]r2.Point, 0, len(req.NormalizedPixelCoords))
	for _, p := range req.NormalizedPixelCoords {
		pixels = append(pixels, p.r2())
	}
	s.writeResult(w, s.svc.AddCalibrationPoints(r.Context(), pixels))
}

func (s *controlServer) manualTargetAimLaser(w http.ResponseWriter, r *http.Request) {
	var req manualTargetAimLaserRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.NormalizedPixelCoord == nil {
		s.writeJSON(w, http.StatusBadRequest, resultResponse{Error: `"normalized_pixel_coord" is required`})
		return
	}
	s.writeResult(w, s.svc.ManualTargetAimLaser(r.Context(), req.NormalizedPixelCoord.r2()))
}

func (s *controlServer) startRunnerCutter(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.svc.StartRunnerCutter(r.Context()))
}

func (s *controlServer) stop(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.svc.Stop(r.Context()))
}

func (s *controlServer) state(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetState(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, resultResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, toStateResponse(st))
}

// NewHandler returns the HTTP handler serving the control API of svc under /api. Requests from any
// origin are allowed so that an operator UI served elsewhere can drive it.
func NewHandler(svc runnercutter.Service, options Options, logger logging.Logger) http.Handler {
	s := &controlServer{svc: svc, logger: logger}

	mux := goji.NewMux()
	mux.HandleFunc(pat.Post("/api/calibrate"), s.calibrate)
	mux.HandleFunc(pat.Post("/api/add_calibration_points"), s.addCalibrationPoints)
	mux.HandleFunc(pat.Post("/api/manual_target_aim_laser"), s.manualTargetAimLaser)
	mux.HandleFunc(pat.Post("/api/start_runner_cutter"), s.startRunnerCutter)
	mux.HandleFunc(pat.Post("/api/stop"), s.stop)
	mux.HandleFunc(pat.Get("/api/state"), s.state)

	if options.Pprof {
		mux.HandleFunc(pat.New("/debug/pprof/"), pprof.Index)
		mux.HandleFunc(pat.New("/debug/pprof/cmdline"), pprof.Cmdline)
		mux.HandleFunc(pat.New("/debug/pprof/profile"), pprof.Profile)
		mux.HandleFunc(pat.New("/debug/pprof/symbol"), pprof.Symbol)
		mux.HandleFunc(pat.New("/debug/pprof/trace"), pprof.Trace)
	}
	return cors.AllowAll().Handler(mux)
}

// RunWeb serves the control API of svc. This function will block until the context is done.
func RunWeb(ctx context.Context, svc runnercutter.Service, options Options, logger logging.Logger) error {
	listener, err := net.Listen("tcp", options.Address)
	if err != nil {
		return err
	}
	return serve(ctx, listener, NewHandler(svc, options, logger), logger)
}

func serve(ctx context.Context, listener net.Listener, handler http.Handler, logger logging.Logger) error {
	httpServer := &http.Server{
		Addr:              listener.Addr().String(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           handler,
	}

	goutils.PanicCapturingGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("error shutting down", "error", err)
		}
	})

	logger.Infow("serving", "url", fmt.Sprintf("http://%s", listener.Addr().String()))
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
