package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// objectNamespace seeds deterministic Weaviate object ids from post ids.
var objectNamespace = uuid.MustParse("6f1c7f0e-3a52-4b8e-9d0c-1f2a9e4b7c55")

// hybridAlpha weights vector similarity against keyword match.
const hybridAlpha = 0.75

type weavNative struct {
	client *weaviate.Client
	log    zerolog.Logger
}

// NewWeaviateNativeIndex constructs an Index backed by Weaviate at baseURL
// (host:port, scheme optional).
func NewWeaviateNativeIndex(baseURL string, log zerolog.Logger) (Index, error) {
	cl, err := newClient(baseURL)
	if err != nil {
		return nil, err
	}
	return &weavNative{client: cl, log: log}, nil
}

func newClient(baseURL string) (*weaviate.Client, error) {
	if baseURL == "" {
		return nil, errors.New("weaviate URL is required")
	}
	scheme := "http"
	host := baseURL
	if i := strings.Index(baseURL, "://"); i >= 0 {
		scheme, host = baseURL[:i], baseURL[i+3:]
	}
	return weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: strings.TrimRight(host, "/")})
}

// ObjectID maps a post id to its stable Weaviate object id.
func ObjectID(postID string) string {
	return uuid.NewSHA1(objectNamespace, []byte(postID)).String()
}

// UpsertPost replaces the object for doc.PostID.
func (w *weavNative) UpsertPost(ctx context.Context, doc PostDoc, vec []float32) error {
	id := ObjectID(doc.PostID)
	exists, err := w.client.Data().Checker().WithClassName(PostClass).WithID(id).Do(ctx)
	if err != nil {
		return fmt.Errorf("check object %s: %w", id, err)
	}
	if exists {
		if err := w.client.Data().Deleter().WithClassName(PostClass).WithID(id).Do(ctx); err != nil {
			return fmt.Errorf("replace object %s: %w", id, err)
		}
	}
	_, err = w.client.Data().Creator().
		WithClassName(PostClass).
		WithID(id).
		WithProperties(docProperties(doc)).
		WithVector(vec).
		Do(ctx)
	return err
}

func docProperties(doc PostDoc) map[string]interface{} {
	return map[string]interface{}{
		"postId":      doc.PostID,
		"authorRef":   doc.AuthorRef,
		"content":     doc.Content,
		"createdTime": doc.CreatedTime.UTC().Format(time.RFC3339),
		"relevant":    doc.Relevant,
		"score":       doc.Score,
	}
}

// Search runs a hybrid query over post content.
func (w *weavNative) Search(ctx context.Context, query string, vec []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithAlpha(hybridAlpha).
		WithProperties([]string{"content"})
	if len(vec) > 0 {
		hy = hy.WithVector(vec)
	}

	resp, err := w.client.GraphQL().Get().
		WithClassName(PostClass).
		WithHybrid(hy).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "postId"},
			gql.Field{Name: "authorRef"},
			gql.Field{Name: "content"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "score"}}},
		).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}
	hits := parseHits(resp.Data["Get"])
	w.log.Debug().Str("query", query).Int("hits", len(hits)).Msg("post search")
	return hits, nil
}

// parseHits extracts hits from the "Get" section of a GraphQL response.
func parseHits(get interface{}) []Hit {
	getData, ok := get.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := getData[PostClass].([]interface{})
	if !ok {
		return []Hit{}
	}
	str := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}
	out := make([]Hit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var score float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["score"].(type) {
			case float64:
				score = v
			case string:
				score, _ = strconv.ParseFloat(v, 64)
			}
		}
		out = append(out, Hit{
			PostID:    str(m["postId"]),
			AuthorRef: str(m["authorRef"]),
			Content:   str(m["content"]),
			Score:     score,
		})
	}
	return out
}

// DeletePost is best-effort; a missing object is not an error.
func (w *weavNative) DeletePost(ctx context.Context, postID string) error {
	if postID == "" {
		return nil
	}
	_ = w.client.Data().Deleter().WithClassName(PostClass).WithID(ObjectID(postID)).Do(ctx)
	return nil
}

// HealthPing implements health.HealthPinger.
func (w *weavNative) HealthPing(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.New("weaviate not ready")
	}
	return nil
}

func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
