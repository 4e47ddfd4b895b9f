// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// PlexSink triggers a Plex library scan on DOWNLOAD_COMPLETED events whose
// payload carries a "plex_section_id" string; without one it does nothing.
// Other event kinds are ignored — Plex has nothing useful to do with a
// sync summary or a bare discovery notice.
type PlexSink struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewPlexSink returns a PlexSink pointed at baseURL, authenticated with token.
func NewPlexSink(baseURL, token string) *PlexSink {
	return &PlexSink{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *PlexSink) Notify(ctx context.Context, event Event) error {
	if event.Kind != DownloadCompleted {
		return nil
	}
	sectionID, _ := event.Payload["plex_section_id"].(string)
	if sectionID == "" {
		return nil
	}

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("notifier: invalid plex base url: %w", err)
	}
	u.Path = fmt.Sprintf("/library/sections/%s/refresh", sectionID)
	q := u.Query()
	q.Set("X-Plex-Token", p.Token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("notifier: build plex request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: plex scan request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: plex scan returned status %d", resp.StatusCode)
	}
	return nil
}
