package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"customs_auction/internal/model"
	"customs_auction/internal/notify"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestWhapiSender_Send(t *testing.T) {
	var got struct {
		path, auth string
		body       map[string]string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sent":true}`))
	}))
	defer srv.Close()

	s := notify.NewWhapiSender(srv.URL+"/", "secret-token")
	if err := s.Send(context.Background(), "+52 55 1234 5678", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.path != "/messages/text" {
		t.Errorf("path = %s", got.path)
	}
	if got.auth != "Bearer secret-token" {
		t.Errorf("auth = %q", got.auth)
	}
	if got.body["to"] != "525512345678" || got.body["body"] != "hello" {
		t.Errorf("body = %v", got.body)
	}
}

func TestWhapiSender_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	s := notify.NewWhapiSender(srv.URL, "t")
	err := s.Send(context.Background(), "5512345678", "hello")
	if err == nil || !strings.Contains(err.Error(), "invalid recipient") {
		t.Errorf("Send() error = %v, want API message", err)
	}
	if err := s.Send(context.Background(), "---", "hello"); err == nil {
		t.Errorf("Send() with empty phone succeeded")
	}
}

func TestProfileDirectory_Lookup(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:profile_directory?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&model.Profile{}); err != nil {
		t.Fatal(err)
	}
	db.Create(&model.Profile{ID: "u1", FullName: "Ana Torres", Phone: "+52 55 1234 5678"})
	db.Create(&model.Profile{ID: "u2", FullName: "No Phone"})

	dir := notify.NewProfileDirectory(db)
	c, err := dir.Lookup(context.Background(), "u1")
	if err != nil || c.FullName != "Ana Torres" || c.Phone == "" {
		t.Errorf("Lookup(u1) = %+v, %v", c, err)
	}
	for _, id := range []string{"u2", "missing"} {
		if _, err := dir.Lookup(context.Background(), id); err != notify.ErrNoContact {
			t.Errorf("Lookup(%s) error = %v, want ErrNoContact", id, err)
		}
	}
}
