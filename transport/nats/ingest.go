package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"vecstore"
)

const (
	enrichedSubject  = "nlp.enriched.*"
	vectorizedPrefix = "content.vectorized."
	ingestQueue      = "vecstore-processors"

	// Full text is capped before embedding to keep token counts bounded.
	maxTextLength = 2000
)

// EnrichedContent is the message published by upstream NLP enrichment.
type EnrichedContent struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	Source      string `json:"source,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`

	Payload struct {
		Title string `json:"title,omitempty"`
		Text  string `json:"text,omitempty"`
	} `json:"payload"`

	NLPEnrichment struct {
		Summary  string `json:"summary,omitempty"`
		Entities []struct {
			Text string `json:"text"`
		} `json:"entities,omitempty"`
	} `json:"nlp_enrichment"`
}

// Text concatenates title, summary, and capped full text into the
// string submitted for embedding.
func (c *EnrichedContent) Text() string {
	var out string

	if c.Payload.Title != "" {
		out = c.Payload.Title
	}

	if c.NLPEnrichment.Summary != "" {
		if out != "" {
			out += " "
		}
		out += c.NLPEnrichment.Summary
	}

	text := c.Payload.Text
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}

	if text != "" {
		if out != "" {
			out += " "
		}
		out += text
	}

	return out
}

func (c *EnrichedContent) Metadata() vecstore.Metadata {
	title := c.Payload.Title
	if title == "" {
		title = "Untitled"
	}

	entities := make([]string, 0, len(c.NLPEnrichment.Entities))
	for _, entity := range c.NLPEnrichment.Entities {
		entities = append(entities, entity.Text)
	}

	return vecstore.Metadata{
		"id":           c.ID,
		"content_type": c.ContentType,
		"source":       c.Source,
		"timestamp":    c.Timestamp,
		"title":        title,
		"entities":     entities,
	}
}

type vectorizedEvent struct {
	ID           string `json:"id"`
	ContentType  string `json:"content_type"`
	VectorizedAt string `json:"vectorized_at"`
}

// SubscribeEnriched consumes enriched content in a queue group,
// vectorizes it, and republishes a confirmation event per item.
func SubscribeEnriched(nc *nats.Conn, svc vecstore.Service, log *zap.Logger) (*nats.Subscription, error) {
	log = log.With(
		zap.String("transport", "nats"),
		zap.String("subject", enrichedSubject),
	)

	return nc.QueueSubscribe(enrichedSubject, ingestQueue, func(msg *nats.Msg) {
		var content EnrichedContent
		if err := json.Unmarshal(msg.Data, &content); err != nil {
			log.Error("malformed enriched message", zap.Error(err))
			return
		}

		if content.ID == "" {
			content.ID = uuid.NewString()
		}

		if content.ContentType == "" {
			content.ContentType = "unknown"
		}

		text := content.Text()
		if text == "" {
			log.Warn("no text available for vectorization",
				zap.String("content_id", content.ID),
			)
			return
		}

		ctx := context.Background()
		if err := svc.AddItem(ctx, content.ID, text, content.Metadata()); err != nil {
			log.Error("vectorization failed",
				zap.String("content_id", content.ID),
				zap.Error(err),
			)
			return
		}

		event := vectorizedEvent{
			ID:           content.ID,
			ContentType:  content.ContentType,
			VectorizedAt: time.Now().UTC().Format(time.RFC3339),
		}

		data, err := json.Marshal(&event)
		if err != nil {
			log.Error("marshal vectorized event", zap.Error(err))
			return
		}

		if err := nc.Publish(vectorizedPrefix+content.ContentType, data); err != nil {
			log.Error("publish vectorized event",
				zap.String("content_id", content.ID),
				zap.Error(err),
			)
		}
	})
}
