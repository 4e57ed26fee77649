package swarm

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TaskSubtaskInput is one subtask entry in a POST /tasks body (spec §6).
type TaskSubtaskInput struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
}

// SubmitTaskRequest is the POST /tasks body (spec §6).
type SubmitTaskRequest struct {
	TaskID             string             `json:"task_id"`
	Prompt             string             `json:"prompt"`
	Language           string             `json:"language"`
	SubmitterAccountID string             `json:"submitter_account_id"`
	ProjectID          string             `json:"project_id"`
	ResourceClass      string             `json:"resource_class"`
	Priority           int                `json:"priority"`
	RequestedModel     string             `json:"requested_model,omitempty"`
	Subtasks           []TaskSubtaskInput `json:"subtasks"`
}

// SubmitTaskResponse is the POST /tasks response (spec §6).
type SubmitTaskResponse struct {
	TaskID   string   `json:"task_id"`
	Subtasks []string `json:"subtasks"`
}

// SubtaskResultResponse is the GET /tasks/{id}/subtasks/{id}/result 200
// body (spec §6).
type SubtaskResultResponse struct {
	Output       string  `json:"output"`
	OK           bool    `json:"ok"`
	CreditsSpent float64 `json:"credits_spent"`
}

// Router builds the chi router exposing the swarm coordinator HTTP
// surface consumed by C9 step 3, grounded on gossip.Manager.Router's
// chi wiring.
func (q *Queue) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/tasks", q.handleSubmitTask)
	r.Get("/tasks/{taskID}/subtasks/{subtaskID}/result", q.handleSubtaskResult)
	return r
}

// handleSubmitTask enqueues one subtask per entry in the request body
// under the request's project_id; the submitter is not registered as an
// agent. If no per-entry subtasks are given, the top-level
// prompt/language is enqueued as the sole subtask.
func (q *Queue) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	entries := req.Subtasks
	if len(entries) == 0 {
		entries = []TaskSubtaskInput{{Prompt: req.Prompt, Language: req.Language}}
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		st := q.EnqueueSubtask(req.ProjectID, e.Prompt, e.Language, req.Priority)
		ids = append(ids, st.ID)
	}

	writeJSON(w, http.StatusOK, SubmitTaskResponse{TaskID: req.TaskID, Subtasks: ids})
}

func (q *Queue) handleSubtaskResult(w http.ResponseWriter, r *http.Request) {
	subtaskID := chi.URLParam(r, "subtaskID")
	result, ok := q.Result(subtaskID)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, SubtaskResultResponse{
		Output:       result.Output,
		OK:           result.OK,
		CreditsSpent: result.CreditsSpent,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
