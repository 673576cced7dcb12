package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// State is a RenderJob lifecycle state.
type State string

const (
	StateCreated   State = "CREATED"
	StateFetching  State = "FETCHING"
	StateBuilding  State = "BUILDING"
	StateRendering State = "RENDERING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions lists the allowed successor states. Building never fails.
var transitions = map[State][]State{
	StateCreated:   {StateFetching},
	StateFetching:  {StateBuilding, StateFailed},
	StateBuilding:  {StateRendering},
	StateRendering: {StateCompleted, StateFailed},
}

// WorkspacePaths are the local files a job may write. All three derive from
// the job id.
type WorkspacePaths struct {
	Video  string `json:"-"`
	Image  string `json:"-"`
	Output string `json:"-"`
}

// RenderJob is one render request from acceptance to terminal state.
type RenderJob struct {
	ID               string         `json:"id"`
	VideoURL         string         `json:"video_url"`
	TemplateImageURL string         `json:"template_image_url"`
	Preset           string         `json:"preset,omitempty"`
	Paths            WorkspacePaths `json:"-"`
	State            State          `json:"state"`
	OutputKey        string         `json:"output_key,omitempty"`
	OutputURL        string         `json:"output_url,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// BaseURL prefixes the published output URL, e.g. "https://host".
	BaseURL string `json:"-"`
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRenderJob creates a job in StateCreated.
func NewRenderJob(videoURL, imageURL string) *RenderJob {
	now := time.Now().UTC()
	return &RenderJob{
		ID:               NewJobID(),
		VideoURL:         videoURL,
		TemplateImageURL: imageURL,
		State:            StateCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Transition moves the job to next. An illegal transition leaves the job
// untouched and returns an error.
func (j *RenderJob) Transition(next State) error {
	for _, allowed := range transitions[j.State] {
		if allowed == next {
			j.State = next
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("illegal job transition %s -> %s", j.State, next)
}

// Fail moves the job to StateFailed and records the cause. Messages are
// truncated so a runaway engine log cannot bloat the job record.
func (j *RenderJob) Fail(cause error) error {
	if err := j.Transition(StateFailed); err != nil {
		return err
	}
	if cause != nil {
		j.Error = truncate(cause.Error(), maxErrorLen)
	}
	return nil
}

const maxErrorLen = 2000

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Complete moves the job to StateCompleted with its published location.
func (j *RenderJob) Complete(outputKey, outputURL string) error {
	if err := j.Transition(StateCompleted); err != nil {
		return err
	}
	j.OutputKey = outputKey
	j.OutputURL = outputURL
	return nil
}
