// Package extract pulls candidate articles out of raw alert message bodies.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"reportwatch/internal/watch"
)

// DefaultMarker precedes the markdown link in plain-text alert bodies.
const DefaultMarker = "New coverage:"

// markdownLink matches [title](url) with an http(s) destination.
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^\s)]+)\)`)

// metadataBlock mirrors the structured prefix carried by richer alert bodies.
type metadataBlock struct {
	Embeds []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
	} `json:"embeds"`
}

// Extractor parses alert bodies into candidate articles.
type Extractor struct {
	marker string
	logger *zap.Logger
}

// New builds an Extractor. An empty marker falls back to DefaultMarker.
func New(marker string, logger *zap.Logger) *Extractor {
	if marker == "" {
		marker = DefaultMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{marker: marker, logger: logger}
}

// Extract returns the single candidate article referenced by the message, or
// nil when the body carries none. A nil result is a normal skip, not an
// error. The structured metadata prefix wins; the marker + markdown-link
// fallback applies only when the prefix is absent or unparseable.
func (e *Extractor) Extract(msg watch.AlertMessage) *watch.CandidateArticle {
	if article := e.fromMetadata(msg); article != nil {
		return article
	}
	return e.fromMarker(msg)
}

func (e *Extractor) fromMetadata(msg watch.AlertMessage) *watch.CandidateArticle {
	body := strings.TrimSpace(msg.RawBody)
	if !strings.HasPrefix(body, "{") {
		return nil
	}

	var block metadataBlock
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&block); err != nil {
		e.logger.Debug("metadata prefix unparseable, trying marker fallback",
			zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if len(block.Embeds) == 0 || block.Embeds[0].URL == "" {
		return nil
	}

	embed := block.Embeds[0]
	return &watch.CandidateArticle{
		SourceMessageID: msg.ID,
		Title:           strings.TrimSpace(embed.Title),
		Description:     strings.TrimSpace(embed.Description),
		RawURL:          embed.URL,
	}
}

func (e *Extractor) fromMarker(msg watch.AlertMessage) *watch.CandidateArticle {
	_, after, found := strings.Cut(msg.RawBody, e.marker)
	if !found {
		return nil
	}

	matches := markdownLink.FindAllStringSubmatch(after, 2)
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > 1 {
		// One article per message is an empirical assumption; log when the
		// body violates it so the contract can grow to a list if needed.
		e.logger.Debug("multiple links after marker, keeping the first",
			zap.String("message_id", msg.ID))
	}

	return &watch.CandidateArticle{
		SourceMessageID: msg.ID,
		Title:           strings.TrimSpace(matches[0][1]),
		RawURL:          matches[0][2],
	}
}
