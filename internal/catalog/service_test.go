package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/streamnight/nextup/internal/fault"
	"github.com/streamnight/nextup/internal/users"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:catalog_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &VotingEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct catalog service: %v", err)
	}
	return service, db
}

func TestAddEntrySecuresURLs(t *testing.T) {
	service, _ := newTestService(t)

	entry, err := service.AddEntry(context.Background(), VotingEntryInput{
		Title:      "Hollow Depths",
		TrailerURL: "http://cdn.example.com/trailer.webm",
		StoreURL:   "http://store.example.com/app/1",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.TrailerURL != "https://cdn.example.com/trailer.webm" {
		t.Fatalf("trailer url not secured: %q", entry.TrailerURL)
	}
	if entry.StoreURL != "https://store.example.com/app/1" {
		t.Fatalf("store url not secured: %q", entry.StoreURL)
	}
}

func TestUpdateEntryRejectsSuperVotedEntry(t *testing.T) {
	service, db := newTestService(t)

	entry := VotingEntry{Title: "Winner", SuperVoted: true}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}

	_, err := service.UpdateEntry(context.Background(), entry.ID, VotingEntryInput{Title: "Renamed"})
	if !fault.IsKind(err, fault.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	var stored VotingEntry
	if err := db.First(&stored, entry.ID).Error; err != nil {
		t.Fatalf("failed to load entry: %v", err)
	}
	if stored.Title != "Winner" {
		t.Fatalf("super-voted entry should be untouched, got title %q", stored.Title)
	}
}

func TestUpdateEntryReturnsPreviousRowAndAppliesMediaFlags(t *testing.T) {
	service, db := newTestService(t)

	entry := VotingEntry{Title: "Original", Cover: "voting/old_cover.jpg", Header: "voting/old_header.jpg"}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}

	previous, err := service.UpdateEntry(context.Background(), entry.ID, VotingEntryInput{
		Title:        "Updated",
		Cover:        "voting/new_cover.jpg",
		RemoveHeader: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if previous.Cover != "voting/old_cover.jpg" {
		t.Fatalf("expected previous cover, got %q", previous.Cover)
	}

	var stored VotingEntry
	if err := db.First(&stored, entry.ID).Error; err != nil {
		t.Fatalf("failed to load entry: %v", err)
	}
	if stored.Cover != "voting/new_cover.jpg" {
		t.Fatalf("cover not replaced: %q", stored.Cover)
	}
	if stored.Header != "" {
		t.Fatalf("header should be cleared, got %q", stored.Header)
	}
	if stored.Title != "Updated" {
		t.Fatalf("title not updated: %q", stored.Title)
	}
}

func TestUpdateEntryNotFound(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.UpdateEntry(context.Background(), 404, VotingEntryInput{Title: "Ghost"})
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteEntryClearsViewerVotes(t *testing.T) {
	service, db := newTestService(t)

	entry := VotingEntry{Title: "Doomed"}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
	voter := users.User{TwitchUserID: "1001", VotedEntryID: entry.ID}
	if err := db.Create(&voter).Error; err != nil {
		t.Fatalf("failed to seed voter: %v", err)
	}

	removed, err := service.DeleteEntry(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed.Title != "Doomed" {
		t.Fatalf("unexpected removed entry %+v", removed)
	}

	var storedVoter users.User
	if err := db.First(&storedVoter, voter.ID).Error; err != nil {
		t.Fatalf("failed to load voter: %v", err)
	}
	if storedVoter.VotedEntryID != 0 {
		t.Fatalf("viewer vote should be cleared, got %d", storedVoter.VotedEntryID)
	}

	var count int64
	if err := db.Model(&VotingEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("entry should be deleted, %d rows remain", count)
	}
}

func TestDeleteEntryRejectsSuperVotedEntry(t *testing.T) {
	service, db := newTestService(t)

	entry := VotingEntry{Title: "Winner", SuperVoted: true}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}

	_, err := service.DeleteEntry(context.Background(), entry.ID)
	if !fault.IsKind(err, fault.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListEntriesFiltersByActiveFlag(t *testing.T) {
	service, db := newTestService(t)

	for _, seed := range []VotingEntry{
		{Title: "Active One", IsActive: true},
		{Title: "Inactive", IsActive: false},
		{Title: "Active Two", IsActive: true},
	} {
		entry := seed
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("failed to seed entry: %v", err)
		}
	}

	active := true
	entries, err := service.ListEntries(context.Background(), &active)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 active entries, got %d", len(entries))
	}

	all, err := service.ListEntries(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}
