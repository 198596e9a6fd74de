package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"crash-insights-go/internal/barchart"
	"crash-insights-go/internal/config"
	"crash-insights-go/internal/selection"
	"crash-insights-go/internal/session"
	"crash-insights-go/internal/viewsync"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

type configResponse struct {
	Cities      []config.City `json:"cities"`
	MapboxToken string        `json:"mapbox_token,omitempty"`
	DefaultZoom float64       `json:"default_zoom"`
}

func (s *Server) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Cities:      s.cities.Cities,
		MapboxToken: s.settings.MapboxToken,
		DefaultZoom: s.settings.DefaultZoom,
	})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Summaries())
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

type selectionRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) setSelection(w http.ResponseWriter, r *http.Request) {
	field := mux.Vars(r)["field"]
	reqLog := s.log.WithRequest(r).WithField("handler", "selection").WithField("field", field)

	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	defer r.Body.Close()
	var req selectionRequest
	if err := json.Unmarshal(b, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	switch field {
	case "week":
		var v *int
		if err = decodeValue(req.Value, &v); err == nil {
			err = s.sess.SetWeek(deref(v))
		}
	case "risk":
		var v *float64
		if err = decodeValue(req.Value, &v); err == nil {
			err = s.sess.SetRiskThreshold(deref(v))
		}
	case "speed":
		var v *float64
		if err = decodeValue(req.Value, &v); err == nil {
			err = s.sess.SetSpeedLimitThreshold(deref(v))
		}
	case "city":
		var v *string
		if err = decodeValue(req.Value, &v); err == nil {
			err = s.sess.SetCity(deref(v))
		}
	case "segment":
		var v *string
		if err = decodeValue(req.Value, &v); err == nil {
			err = s.sess.SelectSegment(deref(v))
		}
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown selection field %q", field))
		return
	}
	if err != nil {
		reqLog.WithField("error", err.Error()).Warn("selection failed")
		s.writeSelectionError(w, err)
		return
	}
	reqLog.Info("selection applied")
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Back(); err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Warn("back failed")
		s.writeSelectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

// errBadValue marks a selection value of the wrong JSON type.
var errBadValue = errors.New("bad value")

// decodeValue requires the value key; an explicit null clears the field.
func decodeValue[T any](raw json.RawMessage, dst **T) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing \"value\"", errBadValue)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errBadValue, err)
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (s *Server) writeSelectionError(w http.ResponseWriter, err error) {
	var invalid *selection.InvalidSelectionError
	var unknown *viewsync.UnknownSegmentError
	var unavailable *session.UnavailableError
	switch {
	case errors.Is(err, errBadValue), errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unknown):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) topSegments(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.sess.TopRisk(n))
}

func (s *Server) layer(w http.ResponseWriter, r *http.Request) {
	var body interface{}
	switch mux.Vars(r)["layer"] {
	case "crashes":
		body = s.sess.CrashLayer()
	case "predictions":
		body = s.sess.PredictionLayer()
	default:
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Error("failed to write layer")
	}
}

func (s *Server) chartPNG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := s.sess.WriteChart(w); err != nil {
		w.Header().Del("Content-Type")
		if errors.Is(err, barchart.ErrNoBars) {
			writeError(w, http.StatusServiceUnavailable, "chart not ready")
			return
		}
		s.log.WithRequest(r).WithField("error", err.Error()).Error("chart render failed")
		writeError(w, http.StatusInternalServerError, "chart render failed")
	}
}

func (s *Server) chartSeries(w http.ResponseWriter, r *http.Request) {
	st, err := s.sess.Series(mux.Vars(r)["series"])
	if errors.Is(err, session.ErrUnknownSeries) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
