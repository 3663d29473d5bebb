package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// BootstrapWeaviate ensures the Post class exists.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cl, err := newClient(baseURL)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := ensureClass(cctx, cl, postClass()); err != nil {
		return fmt.Errorf("bootstrap %s: %w", PostClass, err)
	}
	return nil
}

func postClass() *models.Class {
	return &models.Class{
		Class:      PostClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "postId", DataType: []string{"text"}},
			{Name: "authorRef", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "createdTime", DataType: []string{"date"}},
			{Name: "relevant", DataType: []string{"boolean"}},
			{Name: "score", DataType: []string{"number"}},
		},
	}
}

func ensureClass(ctx context.Context, cl *weaviate.Client, desired *models.Class) error {
	ex, err := cl.Schema().ClassGetter().WithClassName(desired.Class).Do(ctx)
	if err == nil && ex != nil {
		return nil
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", desired.Class, err)
	}
	return nil
}
