// Copyright 2025-2026 Mantene

package slackrtm

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// SnippetExternalizer hosts pasted code blocks as Slack file snippets and
// returns their permalinks, so the IRC side gets a short link instead of a
// wall of text.
type SnippetExternalizer struct {
	log zerolog.Logger
	api *slack.Client
	// ShareChannel receives the uploaded snippet; Slack requires uploads
	// to land somewhere before they get a permalink.
	shareChannel string
}

// NewSnippetExternalizer creates an externalizer uploading through the
// given API client into shareChannel.
func NewSnippetExternalizer(log zerolog.Logger, api *slack.Client, shareChannel string) *SnippetExternalizer {
	return &SnippetExternalizer{
		log:          log.With().Str("component", "externalizer").Logger(),
		api:          api,
		shareChannel: shareChannel,
	}
}

// Externalize uploads content and returns a hosted link. Errors are
// recoverable for the caller: the bridge relays the original text instead.
func (e *SnippetExternalizer) Externalize(content, filename string) (string, error) {
	if filename == "" {
		filename = "snippet.txt"
	}
	summary, err := e.api.UploadFileV2(slack.UploadFileV2Parameters{
		Content:  content,
		FileSize: len(content),
		Filename: filename,
		Channel:  e.shareChannel,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snippet: %w", err)
	}
	file, _, _, err := e.api.GetFileInfo(summary.ID, 0, 0)
	if err != nil {
		return "", fmt.Errorf("failed to resolve snippet link: %w", err)
	}
	e.log.Debug().Str("file_id", summary.ID).Str("permalink", file.Permalink).Msg("Externalized snippet")
	return file.Permalink, nil
}

// API exposes the underlying client so the host can share it with the
// externalizer.
func (t *Transport) API() *slack.Client {
	return t.api
}
