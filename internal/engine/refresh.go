package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/fetch"
	"github.com/pders01/ntrack/internal/notify"
	"github.com/pders01/ntrack/internal/quota"
	"github.com/pders01/ntrack/internal/tracker"
)

// errUnchanged aborts a store update that would write nothing new.
var errUnchanged = errors.New("unchanged")

// Outcome is the result of one refresh attempt.
type Outcome struct {
	TrackerID string           `json:"trackerId"`
	Verdict   quota.Verdict    `json:"verdict"`
	New       bool             `json:"new"`
	Err       error            `json:"-"`
	Tracker   *tracker.Tracker `json:"tracker,omitempty"`
}

// Fetched reports whether a request was spent.
func (o Outcome) Fetched() bool {
	return o.Verdict == quota.Proceed
}

type BatchReport struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Total    int           `json:"total"`
	Fetched  int           `json:"fetched"`
	New      int           `json:"new"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Outcomes []Outcome     `json:"-"`
}

func (r *BatchReport) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.Err != nil:
		r.Failed++
	case !o.Fetched():
		r.Skipped++
	}
	if o.Fetched() {
		r.Fetched++
	}
	if o.New {
		r.New++
	}
}

// UpdateTracker refreshes one tracker now, ignoring its update interval but
// not its daily limit. Fetch failures are reported in Outcome.Err; the
// returned error is for trackers that cannot be found or saved.
func (m *Manager) UpdateTracker(ctx context.Context, id string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh(ctx, id, false)
}

// RefreshAll refreshes every due tracker one after another, pausing between
// fetches. A failing tracker never stops the batch.
func (m *Manager) RefreshAll(ctx context.Context) (BatchReport, error) {
	report := BatchReport{Started: m.now()}
	list := m.store.List()
	report.Total = len(list)

	paced := false
	for _, t := range list {
		if err := ctx.Err(); err != nil {
			report.Duration = m.now().Sub(report.Started)
			return report, err
		}
		if paced {
			if err := wait(ctx, m.pace); err != nil {
				report.Duration = m.now().Sub(report.Started)
				return report, err
			}
		}

		m.mu.Lock()
		out, err := m.refresh(ctx, t.ID, true)
		m.mu.Unlock()
		if err != nil {
			if errors.Is(err, tracker.ErrNotFound) {
				// deleted since the batch started
				report.Total--
				continue
			}
			debuglog.Warnf("refreshing %s: %v", t.ID, err)
			out = Outcome{TrackerID: t.ID, Verdict: quota.Proceed, Err: err}
		}
		report.add(out)
		paced = out.Fetched()
	}

	report.Duration = m.now().Sub(report.Started)
	debuglog.Infof("refreshed %d trackers: %d fetched, %d new, %d failed, %d skipped",
		report.Total, report.Fetched, report.New, report.Failed, report.Skipped)
	return report, nil
}

// refresh runs the gate under the store lock, fetches outside it and
// applies the result in a second update. Callers hold m.mu.
func (m *Manager) refresh(ctx context.Context, id string, scheduled bool) (Outcome, error) {
	out := Outcome{TrackerID: id}

	now := m.now()
	snap, err := m.store.Update(ctx, id, func(t *tracker.Tracker) error {
		before := quotaState(t)
		out.Verdict = m.gate.Admit(t, now, scheduled)
		if out.Verdict != quota.Proceed && quotaState(t) == before {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		snap, err = m.store.Get(id)
	}
	if err != nil {
		return out, err
	}
	out.Tracker = snap

	switch out.Verdict {
	case quota.LimitReached:
		debuglog.Infof("%s reached its daily limit of %d", snap.ID, snap.DailyRequestLimit)
		m.notify(ctx, notify.Event{
			Kind:      notify.KindLimitReached,
			TrackerID: snap.ID,
			Source:    "Rate Limit Reached",
			Message:   snap.DisplayTitle() + " has reached its daily limit.",
		})
		return out, nil
	case quota.CoolingDown, quota.NotDue:
		return out, nil
	}

	fr, fetchErr := m.fetcher.Fetch(ctx, snap)

	checked := m.now()
	failureOnset := false
	updated, err := m.store.Update(ctx, id, func(t *tracker.Tracker) error {
		t.LastChecked = checked
		if fetchErr != nil {
			failureOnset = t.LastError == ""
			t.LastError = fetchErr.Error()
			return nil
		}
		t.LastError = ""
		if t.FaviconURL == "" {
			t.FaviconURL = fr.FaviconURL
		}
		out.New = m.applyResult(t, fr)
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("saving refresh of %s: %w", id, err)
	}
	out.Tracker = updated

	if fetchErr != nil {
		out.Err = fetchErr
		debuglog.Warnf("fetching %s (%s): %v", updated.ID, updated.Source, fetchErr)
		if failureOnset {
			m.notify(ctx, notify.Event{
				Kind:      notify.KindFetchFailed,
				TrackerID: updated.ID,
				Source:    updated.DisplayTitle(),
				Message:   "Update failed: " + fetchErr.Error(),
			})
		}
		return out, nil
	}

	m.indexed(updated)
	if out.New {
		m.notify(ctx, notify.Event{
			Kind:      notify.KindNewContent,
			TrackerID: updated.ID,
			Source:    updated.DisplayTitle(),
			Message:   updated.FeedContent.DisplayedContent,
			Link:      updated.Link(),
		})
	}
	return out, nil
}

// applyResult stores the fetched content and reports whether it is new.
// Content is new when there was none before or its pubDate is strictly
// later. lastUpdate never moves backwards.
func (m *Manager) applyResult(t *tracker.Tracker, fr *fetch.Result) bool {
	content := fr.Content
	isNew := t.FeedContent == nil || content.PubDate.After(t.FeedContent.PubDate)
	t.FeedContent = &content

	if !isNew || (!t.Type.HasPublishTime() && !m.badgeSnapshots) {
		return false
	}
	if t.LastUpdate == nil || content.PubDate.After(*t.LastUpdate) {
		pub := content.PubDate
		t.LastUpdate = &pub
	}
	return true
}

type quotaFields struct {
	count   int
	reset   time.Time
	limited time.Time
}

func quotaState(t *tracker.Tracker) quotaFields {
	q := quotaFields{count: t.RequestCount, reset: t.RequestResetTime}
	if t.RateLimitedUntil != nil {
		q.limited = *t.RateLimitedUntil
	}
	return q
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
