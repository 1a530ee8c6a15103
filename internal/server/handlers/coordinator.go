package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/gocrack/internal/errors"
	"github.com/3leaps/gocrack/pkg/api"
	"github.com/3leaps/gocrack/pkg/coordinator"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// MaxUploadBytes bounds the size of a hash upload.
const MaxUploadBytes = 16 << 20

// Coordinator exposes a coordinator.Coordinator over HTTP.
type Coordinator struct {
	coord *coordinator.Coordinator
}

// NewCoordinator wraps c.
func NewCoordinator(c *coordinator.Coordinator) *Coordinator {
	return &Coordinator{coord: c}
}

// Routes mounts every coordinator endpoint on r.
func (h *Coordinator) Routes(r chi.Router) {
	r.Post(api.PathRegister, h.Register)
	r.Post(api.PathHeartbeat, h.Heartbeat)
	r.Post(api.PathDisconnect, h.Disconnect)
	r.Get(api.PathMinions, h.Minions)
	r.Post(api.PathUploadHashes, h.UploadHashes)
	r.Get(api.PathGetTask, h.GetTask)
	r.Get(api.PathTaskStatus, h.TaskStatus)
	r.Post(api.PathSubmitResult, h.SubmitResult)
	r.Post(api.PathFailTask, h.FailTask)
	r.Get(api.PathAllTasks, h.AllTasks)
	r.Get(api.PathStatus, h.Status)
}

// CheckHealth reports the coordinator ready once it serves a keyspace.
func (h *Coordinator) CheckHealth(_ context.Context) error {
	if h.coord == nil {
		return fmt.Errorf("coordinator not configured")
	}
	return nil
}

func (h *Coordinator) Register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.coord.Register(req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Ack{
		Status:  api.StatusSuccess,
		Message: fmt.Sprintf("Minion %s registered", rec.ID),
	})
}

func (h *Coordinator) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, api.QueryMinionID)
	if _, err := h.coord.Heartbeat(id); err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Ack{Status: api.StatusSuccess})
}

func (h *Coordinator) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req api.DisconnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	requeued, err := h.coord.Disconnect(req.MinionID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Ack{
		Status:  api.StatusSuccess,
		Message: fmt.Sprintf("Minion %s disconnected, %d tasks requeued", req.MinionID, len(requeued)),
	})
}

func (h *Coordinator) Minions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.MinionsResponse{Minions: h.coord.Minions()})
}

// UploadHashes accepts a multipart form with a .txt file in the "file"
// field, or a text/* body. Any other payload is rejected.
func (h *Coordinator) UploadHashes(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	body, closeFn, err := uploadReader(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	defer closeFn()

	sum, err := h.coord.SubmitHashes(r.Context(), body)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.UploadResponse{
		Status:  api.StatusSuccess,
		Message: fmt.Sprintf("Submitted %d hashes as %d tasks", len(sum.Hashes), sum.Tasks),
		Hashes:  sum.Hashes,
		Tasks:   sum.Tasks,
		Slices:  sum.Slices,
	})
}

func uploadReader(r *http.Request) (io.Reader, func(), error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, apperrors.NewInvalidPayload("invalid or missing Content-Type, expected text/* or multipart/form-data", err).
			WithDetails(map[string]any{"content_type": contentType})
	}
	if strings.HasPrefix(mediaType, "text/") {
		return r.Body, func() {}, nil
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, nil, apperrors.NewInvalidPayload("non-text payload, expected text/* or multipart/form-data", nil).
			WithDetails(map[string]any{"content_type": mediaType})
	}

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, nil, apperrors.NewInvalidPayload("invalid multipart form", err)
	}
	file, header, err := r.FormFile(api.UploadFormField)
	if err != nil {
		return nil, nil, apperrors.NewInvalidPayload(fmt.Sprintf("missing %q file part", api.UploadFormField), err)
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".txt") {
		_ = file.Close()
		return nil, nil, apperrors.NewInvalidPayload("invalid file type, expected a .txt file", nil).
			WithDetails(map[string]any{"filename": header.Filename})
	}
	return file, func() { _ = file.Close() }, nil
}

// GetTask claims the next pending task. It answers 204 when there is none.
func (h *Coordinator) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, api.QueryMinionID)
	if !ok {
		return
	}
	task, found, err := h.coord.Claim(id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Coordinator) TaskStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, api.QueryTaskID)
	if !ok {
		return
	}
	task, err := h.coord.Task(id)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.TaskStatusResponse{TaskID: task.ID, Status: task.Status, AssignedTo: task.AssignedTo})
}

func (h *Coordinator) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitResultRequest
	if !decodeJSON(w, r, &req) || !requireIDs(w, r, req.MinionID, req.TaskID) {
		return
	}
	out, err := h.coord.SubmitResult(req.MinionID, req.TaskID, req.Result)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse(out))
}

func (h *Coordinator) FailTask(w http.ResponseWriter, r *http.Request) {
	var req api.FailTaskRequest
	if !decodeJSON(w, r, &req) || !requireIDs(w, r, req.MinionID, req.TaskID) {
		return
	}
	out, err := h.coord.FailTask(req.MinionID, req.TaskID, req.Reason)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse(out))
}

func (h *Coordinator) AllTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.coord.Tasks()
	resp := api.AllTasksResponse{Tasks: make(map[string]taskstore.Task, len(tasks))}
	for _, t := range tasks {
		resp.Tasks[t.ID] = t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Coordinator) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Snapshot())
}

func updateResponse(out taskstore.Outcome) api.TaskUpdateResponse {
	return api.TaskUpdateResponse{
		Status:    api.StatusSuccess,
		TaskID:    out.Task.ID,
		NewStatus: out.Task.Status,
		Cancelled: out.Cancelled,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, r, apperrors.NewInvalidPayload("invalid JSON body", err))
		return false
	}
	return true
}

func requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		respondWithError(w, r, apperrors.NewInvalidPayload(fmt.Sprintf("query parameter %q is required", key), nil))
		return "", false
	}
	return v, true
}

func requireIDs(w http.ResponseWriter, r *http.Request, minionID, taskID string) bool {
	if strings.TrimSpace(minionID) == "" || strings.TrimSpace(taskID) == "" {
		respondWithError(w, r, apperrors.NewInvalidPayload("minion_id and task_id are required", nil))
		return false
	}
	return true
}
