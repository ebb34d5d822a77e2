package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/edurelay/ltirelay/internal/lti"
)

const (
	scoreTag   = "score"
	scoreLabel = "Score"
	timeTag    = "time"
	timeLabel  = "Time Taken"

	scoreMaximum = 100
	timeMaximum  = 999
)

// ScoreboardEntry is one row of the per-context scoreboard, ordered by
// submission recency upstream.
type ScoreboardEntry struct {
	Score float64  `json:"score"`
	Time  *float64 `json:"time,omitempty"`
	Name  string   `json:"name"`
}

// Score records an earned score and the time spent for the launching user.
// Both gradebook columns must accept the submission for the call to succeed.
func (h *Handlers) Score(w http.ResponseWriter, r *http.Request) {
	launchID := chi.URLParam(r, "launchID")
	earned, err := strconv.Atoi(chi.URLParam(r, "earnedScore"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "earned score must be an integer"})
		return
	}
	spent, err := strconv.Atoi(chi.URLParam(r, "timeSpent"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "time spent must be an integer"})
		return
	}

	launch, err := h.resolveLaunch(r.Context(), launchID, capGrades)
	if err != nil {
		writeError(w, r, err)
		return
	}

	grades := launch.Grades()
	timestamp := h.timestamp()
	base := lti.Grade{
		Timestamp:        timestamp,
		ActivityProgress: "Completed",
		GradingProgress:  "FullyGraded",
		UserID:           launch.Subject(),
	}

	scoreGrade := base
	scoreGrade.ScoreGiven = float64(earned)
	scoreGrade.ScoreMaximum = scoreMaximum
	if _, err := grades.PutGrade(r.Context(), scoreGrade, lti.LineItem{
		Tag:          scoreTag,
		Label:        scoreLabel,
		ScoreMaximum: scoreMaximum,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	timeGrade := base
	timeGrade.ScoreGiven = float64(spent)
	timeGrade.ScoreMaximum = timeMaximum
	result, err := grades.PutGrade(r.Context(), timeGrade, lti.LineItem{
		Tag:          timeTag,
		Label:        timeLabel,
		ScoreMaximum: timeMaximum,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  gradeResultPayload(result),
	})
}

// gradeResultPayload passes the upstream response body through verbatim when
// it is valid JSON, and as a string otherwise.
func gradeResultPayload(result *lti.GradeResult) any {
	if result == nil || len(result.Body) == 0 {
		return ""
	}
	if json.Valid(result.Body) {
		return json.RawMessage(result.Body)
	}
	return string(result.Body)
}

// timestamp formats submission time the way the gradebook expects:
// microsecond UTC, optionally suffixed with a zone marker.
func (h *Handlers) timestamp() string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000000")
	if h.cfg.AppendTimezone {
		ts += "Z"
	}
	return ts
}

// Scoreboard assembles the context's score table: both gradebook columns plus
// the roster, fetched in parallel, correlated per user.
func (h *Handlers) Scoreboard(w http.ResponseWriter, r *http.Request) {
	launchID := chi.URLParam(r, "launchID")
	launch, err := h.resolveLaunch(r.Context(), launchID, capGrades, capRoster)
	if err != nil {
		writeError(w, r, err)
		return
	}

	grades := launch.Grades()
	roster := launch.Roster()

	var (
		scores  []lti.GradeRecord
		times   []lti.GradeRecord
		members []lti.Member
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		scores, err = grades.GetGrades(ctx, lti.LineItem{Tag: scoreTag, Label: scoreLabel, ScoreMaximum: scoreMaximum})
		return err
	})
	g.Go(func() (err error) {
		times, err = grades.GetGrades(ctx, lti.LineItem{Tag: timeTag, Label: timeLabel, ScoreMaximum: timeMaximum})
		return err
	})
	g.Go(func() (err error) {
		members, err = roster.Members(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, buildScoreboard(scores, times, members))
}

// buildScoreboard walks the score column in order, attaching each entry's
// time result and display name by first match on the user identifier.
func buildScoreboard(scores, times []lti.GradeRecord, members []lti.Member) []ScoreboardEntry {
	board := make([]ScoreboardEntry, 0, len(scores))
	for _, score := range scores {
		entry := ScoreboardEntry{Score: score.ResultScore, Name: "Unknown"}
		for _, t := range times {
			if t.UserID == score.UserID {
				spent := t.ResultScore
				entry.Time = &spent
				break
			}
		}
		for _, m := range members {
			if m.UserID == score.UserID {
				if m.Name != "" {
					entry.Name = m.Name
				}
				break
			}
		}
		board = append(board, entry)
	}
	return board
}
