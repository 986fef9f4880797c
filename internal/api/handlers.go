package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pders01/ntrack/internal/classify"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/engine"
	"github.com/pders01/ntrack/internal/tracker"
)

const defaultSearchLimit = 20

type handler struct {
	eng     Engine
	batches Batcher
	now     func() time.Time
}

// trackerView adds derived display fields to a tracker. UpdateInterval
// shadows the embedded field so responses use the same duration strings
// requests do.
type trackerView struct {
	*tracker.Tracker
	UpdateInterval string `json:"updateInterval"`
	Label          string `json:"label"`
	Fresh          bool   `json:"fresh"`
	Link           string `json:"link,omitempty"`
}

func (h *handler) view(t *tracker.Tracker) trackerView {
	return trackerView{
		Tracker:        t,
		UpdateInterval: t.UpdateInterval.String(),
		Label:          t.Type.Label(),
		Fresh:          t.IsFresh(h.now()),
		Link:           t.Link(),
	}
}

// trackerRequest is the body of POST and PATCH. Intervals are Go duration
// strings such as "10m".
type trackerRequest struct {
	Source            *string `json:"source"`
	Title             *string `json:"title"`
	TitleKey          *string `json:"titleKey"`
	FeedKey           *string `json:"feedKey"`
	UpdateInterval    *string `json:"updateInterval"`
	DailyRequestLimit *int    `json:"dailyRequestLimit"`
}

func decodeTrackerRequest(r *http.Request) (*trackerRequest, *time.Duration, error) {
	defer r.Body.Close()

	var req trackerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, nil, errBadRequest("Invalid request payload: " + err.Error())
	}

	if req.UpdateInterval == nil {
		return &req, nil, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*req.UpdateInterval))
	if err != nil {
		return nil, nil, errBadRequest("updateInterval must be a duration such as 10m")
	}
	return &req, &d, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (h *handler) handleListTrackers(w http.ResponseWriter, _ *http.Request) error {
	list := h.eng.List()
	views := make([]trackerView, 0, len(list))
	for _, t := range list {
		views = append(views, h.view(t))
	}
	respondJSON(w, http.StatusOK, views)
	return nil
}

func (h *handler) handleCreateTracker(w http.ResponseWriter, r *http.Request) error {
	req, interval, err := decodeTrackerRequest(r)
	if err != nil {
		return err
	}
	if strings.TrimSpace(deref(req.Source)) == "" {
		return errBadRequest("source is required")
	}

	t, err := h.eng.AddTracker(r.Context(), engine.AddRequest{
		Source:         deref(req.Source),
		Title:          deref(req.Title),
		TitleKey:       deref(req.TitleKey),
		FeedKey:        deref(req.FeedKey),
		UpdateInterval: deref(interval),
		DailyLimit:     deref(req.DailyRequestLimit),
	})
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusCreated, h.view(t))
	return nil
}

func (h *handler) handleGetTracker(w http.ResponseWriter, r *http.Request) error {
	t, err := h.eng.Get(chi.URLParam(r, paramID))
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, h.view(t))
	return nil
}

func (h *handler) handleEditTracker(w http.ResponseWriter, r *http.Request) error {
	req, interval, err := decodeTrackerRequest(r)
	if err != nil {
		return err
	}

	t, err := h.eng.EditTracker(r.Context(), chi.URLParam(r, paramID), engine.EditRequest{
		Source:         req.Source,
		Title:          req.Title,
		TitleKey:       req.TitleKey,
		FeedKey:        req.FeedKey,
		UpdateInterval: interval,
		DailyLimit:     req.DailyRequestLimit,
	})
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, h.view(t))
	return nil
}

func (h *handler) handleDeleteTracker(w http.ResponseWriter, r *http.Request) error {
	if err := h.eng.DeleteTracker(r.Context(), chi.URLParam(r, paramID)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type outcomeView struct {
	Verdict string       `json:"verdict"`
	New     bool         `json:"new"`
	Error   string       `json:"error,omitempty"`
	Tracker *trackerView `json:"tracker,omitempty"`
}

func (h *handler) handleRefreshTracker(w http.ResponseWriter, r *http.Request) error {
	out, err := h.eng.UpdateTracker(r.Context(), chi.URLParam(r, paramID))
	if err != nil {
		return err
	}

	resp := outcomeView{Verdict: out.Verdict.String(), New: out.New}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	if out.Tracker != nil {
		v := h.view(out.Tracker)
		resp.Tracker = &v
	}
	respondJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handler) handleRefreshAll(w http.ResponseWriter, r *http.Request) error {
	// lift the server's write deadline for this response only
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		debuglog.Debugf("refresh: keeping write deadline: %v", err)
	}
	report, err := h.batches.RunOnce(r.Context())
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, report)
	return nil
}

func (h *handler) handleClassify(w http.ResponseWriter, r *http.Request) error {
	input := strings.TrimSpace(r.URL.Query().Get("input"))
	if input == "" {
		return errBadRequest("input is required")
	}
	res, err := h.eng.Classify(r.Context(), input)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, struct {
		Label              string `json:"label"`
		NeedsConfiguration bool   `json:"needsConfiguration"`
		*classify.Result
	}{
		Label:              res.Type.Label(),
		NeedsConfiguration: res.NeedsConfiguration(),
		Result:             res,
	})
	return nil
}

func (h *handler) handleJSONKeys(w http.ResponseWriter, r *http.Request) error {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		return errBadRequest("url is required")
	}
	keys, err := h.eng.DescribeJSON(r.Context(), rawURL)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, keys)
	return nil
}

func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit := defaultSearchLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return errBadRequest("limit must be a positive integer")
		}
		limit = n
	}

	results, err := h.eng.Search(q.Get("q"), limit)
	if err != nil {
		return err
	}
	respondJSON(w, http.StatusOK, results)
	return nil
}

func (h *handler) handleHealthCheck(w http.ResponseWriter, _ *http.Request) error {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"trackers": len(h.eng.List()),
	})
	return nil
}
