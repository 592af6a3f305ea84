package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/shared"
	"github.com/pressline/pressline/internal/source"
)

func TestMigrateOne(t *testing.T) {
	const url = "https://blog.example.com/posts/hello-world"

	t.Run("SuccessRecordsEverything", func(t *testing.T) {
		store := ledger.NewStore(setupTestDB(t))
		blog := newFakeBlog()
		blog.addPost(url, "Hello World")
		blog.meta[url].Categories = []string{"Engineering", "Go"}
		blog.meta[url].Tags = []string{"sqlite", "migration"}
		blog.featured[url] = "https://blog.example.com/img/cover.png"
		blog.links[url] = []source.InternalLinkRef{
			{TargetURL: "https://blog.example.com/posts/other", LinkText: "other post"},
		}
		dest := newFakeDestination()
		med := newFakeMedia()
		med.bodyCount["Hello World"] = 2

		job, err := store.CreateJob(models.JobTypeFull)
		if err != nil {
			t.Fatalf("failed to create job: %v", err)
		}

		m := newMigrator(store, blog, dest, med)
		postID, err := m.MigrateOne(context.Background(), job.ID, url)
		if err != nil {
			t.Fatalf("MigrateOne failed: %v", err)
		}
		if postID != 101 {
			t.Errorf("expected post ID 101, got %d", postID)
		}

		if len(dest.created) != 1 {
			t.Fatalf("expected 1 created post, got %d", len(dest.created))
		}
		created := dest.created[0]
		if created.Title != "Hello World" {
			t.Errorf("unexpected title %q", created.Title)
		}
		if !strings.Contains(created.Content, "<div>") {
			t.Errorf("content was not transformed: %q", created.Content)
		}
		if created.FeaturedMediaID == nil {
			t.Error("expected featured media to be set")
		}
		if len(created.CategoryIDs) != 2 || len(created.TagIDs) != 2 {
			t.Errorf("expected 2 categories and 2 tags, got %d and %d",
				len(created.CategoryIDs), len(created.TagIDs))
		}
		if dest.catParents["Engineering"] != 0 {
			t.Errorf("expected root category, got parent %d", dest.catParents["Engineering"])
		}
		if dest.catParents["Go"] != dest.categories["Engineering"] {
			t.Errorf("expected Go to be a child of Engineering")
		}

		items, err := store.GetItemsByJob(job.ID)
		if err != nil {
			t.Fatalf("failed to load items: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if items[0].Status != models.ItemStatusSuccess {
			t.Errorf("expected success, got %s", items[0].Status)
		}
		if items[0].DestinationPostID == nil || *items[0].DestinationPostID != postID {
			t.Errorf("expected destination post id %d on item", postID)
		}

		mapping, err := store.GetPostMapBySourceURL(url)
		if err != nil {
			t.Fatalf("expected post map row: %v", err)
		}
		if mapping.DestinationPostID != postID {
			t.Errorf("post map points at %d, want %d", mapping.DestinationPostID, postID)
		}

		links, err := store.GetInternalLinksByItem(items[0].ID)
		if err != nil {
			t.Fatalf("failed to load links: %v", err)
		}
		if len(links) != 1 || links[0].TargetURL != "https://blog.example.com/posts/other" {
			t.Errorf("unexpected internal links: %+v", links)
		}
	})

	t.Run("RollbackDeletesUploadedMedia", func(t *testing.T) {
		store := ledger.NewStore(setupTestDB(t))
		blog := newFakeBlog()
		blog.addPost(url, "Doomed Post")
		blog.featured[url] = "https://blog.example.com/img/cover.png"
		dest := newFakeDestination()
		med := newFakeMedia()
		med.bodyCount["Doomed Post"] = 2
		dest.postErr["Doomed Post"] = errors.New("api: 500")

		job, _ := store.CreateJob(models.JobTypeFull)
		m := newMigrator(store, blog, dest, med)
		_, err := m.MigrateOne(context.Background(), job.ID, url)
		if err == nil {
			t.Fatal("expected MigrateOne to fail")
		}
		if !strings.Contains(err.Error(), "create post") {
			t.Errorf("error should name the failing step: %v", err)
		}

		if len(dest.deletedMedia) != 3 {
			t.Errorf("expected 3 media deletes (featured + 2 body), got %d", len(dest.deletedMedia))
		}
		if len(dest.deletedPosts) != 0 {
			t.Errorf("no post was created, expected 0 post deletes, got %d", len(dest.deletedPosts))
		}

		items, _ := store.GetItemsByJob(job.ID)
		if len(items) != 1 || items[0].Status != models.ItemStatusFailed {
			t.Fatalf("expected 1 failed item, got %+v", items)
		}
		if !strings.Contains(items[0].ErrorMessage, "create post") {
			t.Errorf("item should carry the original step error, got %q", items[0].ErrorMessage)
		}

		if _, err := store.GetPostMapBySourceURL(url); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("failed migration must not write a post map row, got %v", err)
		}
	})

	t.Run("PartialBodyUploadsAreCompensated", func(t *testing.T) {
		store := ledger.NewStore(setupTestDB(t))
		blog := newFakeBlog()
		blog.addPost(url, "Half Done")
		dest := newFakeDestination()
		med := newFakeMedia()
		med.bodyCount["Half Done"] = 2
		med.bodyErr["Half Done"] = errors.New("upload: connection reset")

		job, _ := store.CreateJob(models.JobTypeFull)
		m := newMigrator(store, blog, dest, med)
		if _, err := m.MigrateOne(context.Background(), job.ID, url); err == nil {
			t.Fatal("expected MigrateOne to fail")
		}

		if len(dest.deletedMedia) != 2 {
			t.Errorf("expected the 2 partial uploads deleted, got %d", len(dest.deletedMedia))
		}
		if len(dest.created) != 0 || len(dest.deletedPosts) != 0 {
			t.Error("no post should have been created or deleted")
		}
	})

	t.Run("PostMapFailureRollsBackThePost", func(t *testing.T) {
		store := ledger.NewStore(setupTestDB(t))
		blog := newFakeBlog()
		blog.addPost(url, "Mapped Twice")
		blog.featured[url] = "https://blog.example.com/img/cover.png"
		dest := newFakeDestination()
		med := newFakeMedia()
		med.bodyCount["Mapped Twice"] = 2

		// An existing mapping makes the post-map insert hit its UNIQUE
		// constraint after the draft was already created.
		if _, err := store.CreatePostMap(url, 7); err != nil {
			t.Fatalf("failed to seed post map: %v", err)
		}

		job, _ := store.CreateJob(models.JobTypeFull)
		m := newMigrator(store, blog, dest, med)
		if _, err := m.MigrateOne(context.Background(), job.ID, url); err == nil {
			t.Fatal("expected MigrateOne to fail")
		}

		if len(dest.created) != 1 {
			t.Fatalf("expected the draft to have been created, got %d", len(dest.created))
		}
		if len(dest.deletedPosts) != 1 {
			t.Errorf("expected the draft deleted, got %d post deletes", len(dest.deletedPosts))
		}
		if len(dest.deletedMedia) != 3 {
			t.Errorf("expected 3 media deletes (featured + 2 body), got %d", len(dest.deletedMedia))
		}

		items, _ := store.GetItemsByJob(job.ID)
		if len(items) != 1 || items[0].Status != models.ItemStatusFailed {
			t.Fatalf("expected 1 failed item, got %+v", items)
		}
		if items[0].DestinationPostID != nil {
			t.Errorf("rolled-back item must not keep a destination post id")
		}
	})

	t.Run("FetchFailureLeavesDestinationUntouched", func(t *testing.T) {
		store := ledger.NewStore(setupTestDB(t))
		blog := newFakeBlog()
		blog.addPost(url, "Unreachable")
		blog.fetchErr[url] = errors.New("status 503")
		dest := newFakeDestination()

		job, _ := store.CreateJob(models.JobTypeFull)
		m := newMigrator(store, blog, dest, newFakeMedia())
		if _, err := m.MigrateOne(context.Background(), job.ID, url); err == nil {
			t.Fatal("expected MigrateOne to fail")
		}
		if len(dest.deletedMedia) != 0 || len(dest.deletedPosts) != 0 || len(dest.created) != 0 {
			t.Error("destination should be untouched on fetch failure")
		}
	})

	t.Run("DuplicateDispatchRejected", func(t *testing.T) {
		store := ledger.NewStore(setupTestDB(t))
		blog := newFakeBlog()
		blog.addPost(url, "Once Only")
		dest := newFakeDestination()

		job, _ := store.CreateJob(models.JobTypeFull)
		m := newMigrator(store, blog, dest, newFakeMedia())
		if _, err := m.MigrateOne(context.Background(), job.ID, url); err != nil {
			t.Fatalf("first migration failed: %v", err)
		}
		if _, err := m.MigrateOne(context.Background(), job.ID, url); err == nil {
			t.Fatal("second dispatch of the same URL in one job must fail")
		}
		if len(dest.created) != 1 {
			t.Errorf("duplicate dispatch reached the destination: %d posts", len(dest.created))
		}
	})
}
