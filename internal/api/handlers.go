package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/LeventeLantos/health-assistant/internal/broadcast"
	"github.com/LeventeLantos/health-assistant/internal/cache"
	"github.com/LeventeLantos/health-assistant/internal/intake"
	"github.com/LeventeLantos/health-assistant/internal/model"
	"github.com/LeventeLantos/health-assistant/internal/recipient"
	"github.com/LeventeLantos/health-assistant/internal/scheduler"
)

const maxBodyBytes = 1 << 20

// Enqueuer accepts inbound messages for background processing.
type Enqueuer interface {
	Enqueue(msg model.InboundMessage) error
}

// Broadcaster is the operator-facing surface of the broadcast engine.
type Broadcaster interface {
	Submit(ctx context.Context, spec broadcast.JobSpec) (*broadcast.Result, error)
	Start(ctx context.Context, spec broadcast.JobSpec) (*model.BroadcastJob, error)
	Cancel(ctx context.Context, jobID string) error
	RetrySpec(ctx context.Context, jobID string) (broadcast.JobSpec, error)
	Job(ctx context.Context, jobID string) (*model.BroadcastJob, error)
	History(ctx context.Context, limit int) ([]model.BroadcastJob, error)
}

type FailureReader interface {
	RecentFailures(ctx context.Context, n int) ([]cache.DeadLetter, error)
}

type Deps struct {
	Scheduler   *scheduler.Scheduler
	Intake      Enqueuer
	Broadcasts  Broadcaster
	Failures    FailureReader
	VerifyToken string
	AdminKey    string
	Logger      *slog.Logger
}

type Handler struct {
	sched       *scheduler.Scheduler
	intake      Enqueuer
	broadcasts  Broadcaster
	failures    FailureReader
	verifyToken string
	adminKey    string
	logger      *slog.Logger
	now         func() time.Time
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sched:       d.Scheduler,
		intake:      d.Intake,
		broadcasts:  d.Broadcasts,
		failures:    d.Failures,
		verifyToken: d.VerifyToken,
		adminKey:    d.AdminKey,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := verifyChallenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"), h.verifyToken)
	if !ok {
		h.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// ReceiveWebhook validates and enqueues every message in the payload and
// answers before any of them is processed. Invalid messages are dropped and
// counted; a full queue is reported as 503 so the provider redelivers.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	var env envelope
	if err := decodeBody(w, r, &env, false); err != nil {
		h.logger.Warn("malformed webhook payload", "err", err)
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	accepted, rejected := 0, 0
	for _, in := range env.inboundMessages(h.now()) {
		if err := model.Validate(in); err != nil {
			rejected++
			h.logger.Warn("inbound rejected", "external_id", in.ExternalID, "err", err)
			continue
		}

		if err := h.intake.Enqueue(in); err != nil {
			h.logger.Error("inbound not enqueued", "external_id", in.ExternalID, "err", err)
			status := http.StatusServiceUnavailable
			if !errors.Is(err, intake.ErrQueueFull) && !errors.Is(err, intake.ErrClosed) {
				status = http.StatusInternalServerError
			}
			writeError(w, status, err.Error())
			return
		}
		accepted++
	}

	writeJSON(w, http.StatusOK, map[string]any{"accepted": accepted, "rejected": rejected})
}

func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var spec broadcast.JobSpec
	if err := decodeBody(w, r, &spec, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.launch(w, r, spec)
}

func (h *Handler) CreateOutbreakAlert(w http.ResponseWriter, r *http.Request) {
	var in broadcast.OutbreakInput
	if err := decodeBody(w, r, &in, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := broadcast.OutbreakAlert(in)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.launch(w, r, spec)
}

func (h *Handler) CreateEmergencyAlert(w http.ResponseWriter, r *http.Request) {
	var in broadcast.EmergencyInput
	if err := decodeBody(w, r, &in, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := broadcast.EmergencyAlert(in)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.launch(w, r, spec)
}

func (h *Handler) CreateAdvisory(w http.ResponseWriter, r *http.Request) {
	var in broadcast.AdvisoryInput
	if err := decodeBody(w, r, &in, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := broadcast.HealthAdvisory(in)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.launch(w, r, spec)
}

func (h *Handler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	items, err := h.broadcasts.History(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	job, err := h.broadcasts.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) RetryBroadcast(w http.ResponseWriter, r *http.Request) {
	spec, err := h.broadcasts.RetrySpec(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.launch(w, r, spec)
}

func (h *Handler) CancelBroadcast(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.broadcasts.Cancel(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelRequested": true})
}

func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	items, err := h.failures.RecentFailures(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// launch runs spec in the background and returns the accepted job, or with
// ?wait=true runs it to completion and returns the report.
func (h *Handler) launch(w http.ResponseWriter, r *http.Request, spec broadcast.JobSpec) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err := h.broadcasts.Submit(r.Context(), spec)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	job, err := h.broadcasts.Start(r.Context(), spec)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case model.IsValidation(err), errors.Is(err, recipient.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, broadcast.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, broadcast.ErrJobFinished),
		errors.Is(err, broadcast.ErrJobRunning),
		errors.Is(err, broadcast.ErrNothingToRetry):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
