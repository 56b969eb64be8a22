// Package request holds the decoded bodies of the control API.
package request

import (
	"errors"
	"fmt"
	"strings"

	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
	"spiderfetch/pkg/urls"
)

// AddTask is the body of POST /v1/tasks/.
type AddTask struct {
	URL           string `json:"url"`
	Destination   string `json:"destination"`
	Format        string `json:"format"`
	IsPlaylist    bool   `json:"isPlaylist"`
	PlaylistItems string `json:"playlistItems"`
	SelectedCount int    `json:"selectedCount"`
	TotalCount    int    `json:"totalCount"`
	Title         string `json:"title"`
}

// Defaults fills fields the client may omit.
type Defaults struct {
	Destination string
	Format      string
}

// Validate normalizes the URL, applies d and checks the result.
func (a *AddTask) Validate(d Defaults) error {
	a.URL = urls.Normalize(a.URL)

	if strings.TrimSpace(a.Destination) == "" {
		a.Destination = d.Destination
	}

	if a.Format == "" {
		a.Format = d.Format
	}

	var errList []error

	if !urls.IsURLValid(a.URL) {
		errList = append(errList, fmt.Errorf("%w: %q", errs.ErrInvalidURL, a.URL))
	}

	if a.SelectedCount < 0 || a.TotalCount < 0 {
		errList = append(errList, errors.New("counts must not be negative"))
	}

	return errors.Join(errList...)
}

// TaskRequest converts the body for the queue.
func (a AddTask) TaskRequest() entity.TaskRequest {
	return entity.TaskRequest{
		URL:           a.URL,
		Destination:   a.Destination,
		Format:        a.Format,
		IsPlaylist:    a.IsPlaylist,
		PlaylistItems: a.PlaylistItems,
		SelectedCount: a.SelectedCount,
		TotalCount:    a.TotalCount,
		Title:         a.Title,
	}
}

// Fetch is the body of POST /v1/info/ and POST /v1/links/.
type Fetch struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Validate normalizes and checks the URL.
func (f *Fetch) Validate() error {
	f.URL = urls.Normalize(f.URL)
	if !urls.IsURLValid(f.URL) {
		return fmt.Errorf("%w: %q", errs.ErrInvalidURL, f.URL)
	}

	return nil
}

// Prune is the body of POST /v1/tasks/prune. No ids prunes every finished task.
type Prune struct {
	IDs []string `json:"ids"`
}
