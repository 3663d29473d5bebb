package searchindex

import (
	"context"
	"time"
)

// PostClass is the Weaviate class holding post embeddings.
const PostClass = "Post"

// PostDoc is the payload stored alongside a post vector.
type PostDoc struct {
	PostID      string
	AuthorRef   string
	Content     string
	CreatedTime time.Time
	Relevant    bool
	Score       float64
}

// Hit is one similarity search result.
type Hit struct {
	PostID    string  `json:"postId"`
	AuthorRef string  `json:"authorRef"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Index stores post vectors and serves similarity queries.
type Index interface {
	UpsertPost(ctx context.Context, doc PostDoc, vec []float32) error
	Search(ctx context.Context, query string, vec []float32, topK int) ([]Hit, error)
	DeletePost(ctx context.Context, postID string) error
}
