package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// InferenceClient implements LocalRuntime against an Ollama-shaped
// inference backend (spec §6: POST /api/chat, GET /api/tags), grounded
// on gossip.Client's http.Client-wrapping idiom.
type InferenceClient struct {
	baseURL string
	http    *http.Client
}

// NewInferenceClient wraps an http.Client for the local inference
// backend at baseURL.
func NewInferenceClient(baseURL string, httpClient *http.Client) *InferenceClient {
	return &InferenceClient{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Healthy probes GET /api/tags; any 2xx counts as healthy.
func (c *InferenceClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Execute issues a non-streaming POST /api/chat call and returns the
// assistant's reply as the result output.
func (c *InferenceClient) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   false,
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("inference client: chat status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, err
	}
	return Result{Output: out.Message.Content, Model: req.Model}, nil
}

// SwarmCoordinatorClient implements SwarmClient against the swarm
// coordinator HTTP surface (spec §6: POST /tasks, GET
// /tasks/{id}/subtasks/{id}/result), grounded on gossip.Client.
type SwarmCoordinatorClient struct {
	baseURL            string
	submitterAccountID string
	http               *http.Client
}

// NewSwarmCoordinatorClient wraps an http.Client for the swarm
// coordinator at baseURL, submitting tasks on behalf of
// submitterAccountID.
func NewSwarmCoordinatorClient(baseURL, submitterAccountID string, httpClient *http.Client) *SwarmCoordinatorClient {
	return &SwarmCoordinatorClient{
		baseURL:            strings.TrimSuffix(baseURL, "/"),
		submitterAccountID: submitterAccountID,
		http:               httpClient,
	}
}

type submitTaskBody struct {
	TaskID             string          `json:"task_id"`
	Prompt             string          `json:"prompt"`
	Language           string          `json:"language"`
	SubmitterAccountID string          `json:"submitter_account_id"`
	ProjectID          string          `json:"project_id"`
	ResourceClass      string          `json:"resource_class"`
	Priority           int             `json:"priority"`
	RequestedModel     string          `json:"requested_model,omitempty"`
	Subtasks           []submitSubtask `json:"subtasks"`
}

type submitSubtask struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
}

type submitTaskResponse struct {
	TaskID   string   `json:"task_id"`
	Subtasks []string `json:"subtasks"`
}

// pollHandleSep joins the two parts of the opaque SwarmClient.Submit
// return value: the coordinator-assigned task id and the single subtask
// id it spawned, so Poll can recover both from the one string the
// interface threads through.
const pollHandleSep = "\x1f"

// Submit posts req as a single-subtask task descriptor and returns a
// poll handle combining the task id and subtask id.
func (c *SwarmCoordinatorClient) Submit(ctx context.Context, req Request) (string, error) {
	taskID := uuid.NewString()
	body, err := json.Marshal(submitTaskBody{
		TaskID:             taskID,
		Prompt:             req.Prompt,
		Language:           req.Language,
		SubmitterAccountID: c.submitterAccountID,
		ProjectID:          "default",
		ResourceClass:      "cpu",
		Priority:           0,
		RequestedModel:     req.Model,
		Subtasks:           []submitSubtask{{Prompt: req.Prompt, Language: req.Language}},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("swarm client: submit status %d", resp.StatusCode)
	}

	var out submitTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Subtasks) == 0 {
		return "", fmt.Errorf("swarm client: submit response carried no subtasks")
	}
	return out.TaskID + pollHandleSep + out.Subtasks[0], nil
}

type subtaskResultBody struct {
	Output       string  `json:"output"`
	OK           bool    `json:"ok"`
	CreditsSpent float64 `json:"credits_spent"`
}

// Poll checks the subtask result endpoint for handle (as returned by
// Submit). A 202 means pending; a 200 carries the final result.
func (c *SwarmCoordinatorClient) Poll(ctx context.Context, handle string) (Result, bool, error) {
	taskID, subtaskID, ok := strings.Cut(handle, pollHandleSep)
	if !ok {
		return Result{}, false, fmt.Errorf("swarm client: malformed poll handle %q", handle)
	}

	url := fmt.Sprintf("%s/tasks/%s/subtasks/%s/result", c.baseURL, taskID, subtaskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return Result{}, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, false, fmt.Errorf("swarm client: poll status %d", resp.StatusCode)
	}

	var out subtaskResultBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, false, err
	}
	credits := out.CreditsSpent
	return Result{Output: out.Output, CreditsSpent: &credits}, false, nil
}
