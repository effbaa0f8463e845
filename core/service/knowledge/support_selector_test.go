package knowledge

import (
	"context"
	"testing"

	"support_server/core/domain"
)

type fakeKnowledgeRepo struct {
	articles    []*domain.KnowledgeArticle
	incremented []int64
}

func (f *fakeKnowledgeRepo) ListActiveByCategory(ctx context.Context, categoryID int64, limit int) ([]*domain.KnowledgeArticle, error) {
	var result []*domain.KnowledgeArticle
	for _, a := range f.articles {
		if a.CategoryID == categoryID && a.IsActive {
			result = append(result, a)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (f *fakeKnowledgeRepo) IncrementUseCount(ctx context.Context, articleIDs []int64) error {
	f.incremented = append(f.incremented, articleIDs...)
	return nil
}

func TestSelectorLimitsResults(t *testing.T) {
	repo := &fakeKnowledgeRepo{articles: []*domain.KnowledgeArticle{
		{ID: 1, CategoryID: 7, IsActive: true},
		{ID: 2, CategoryID: 7, IsActive: true},
		{ID: 3, CategoryID: 7, IsActive: true},
		{ID: 4, CategoryID: 7, IsActive: true},
	}}
	s := NewSelector(repo, 2)

	got, err := s.Select(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 articles, got %d", len(got))
	}
}

func TestSelectorSkipsOtherCategories(t *testing.T) {
	repo := &fakeKnowledgeRepo{articles: []*domain.KnowledgeArticle{
		{ID: 1, CategoryID: 7, IsActive: true},
		{ID: 2, CategoryID: 9, IsActive: true},
	}}
	s := NewSelector(repo, 0) // default limit

	got, err := s.Select(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("expected only category 7 articles, got %v", got)
	}
}

func TestMarkUsed(t *testing.T) {
	repo := &fakeKnowledgeRepo{}
	s := NewSelector(repo, 3)

	articles := []*domain.KnowledgeArticle{{ID: 5}, {ID: 6}}
	if err := s.MarkUsed(context.Background(), articles); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.incremented) != 2 || repo.incremented[0] != 5 || repo.incremented[1] != 6 {
		t.Errorf("expected ids [5 6] incremented, got %v", repo.incremented)
	}

	// Empty input must not hit the repository.
	repo.incremented = nil
	if err := s.MarkUsed(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.incremented != nil {
		t.Errorf("expected no increments for empty input, got %v", repo.incremented)
	}
}
