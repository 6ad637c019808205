package openapi

import "testing"

// TestLoad проверяет, что встроенный контракт валиден и содержит все маршруты.
func TestLoad(t *testing.T) {
	doc, err := Load("1.2.3")
	if err != nil {
		t.Fatalf("Load ошибка: %v", err)
	}
	if doc.Info.Version != "1.2.3" {
		t.Errorf("version = %q", doc.Info.Version)
	}

	for _, path := range []string{"/", "/token", "/upload", "/{date}/{storageName}", "/files", "/files/{id}", "/health/live", "/health/ready", "/maintenance/reconcile"} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("маршрут %s отсутствует в контракте", path)
		}
	}

	item := doc.Paths.Find("/files/{id}")
	if item != nil && (item.Get == nil || item.Put == nil || item.Delete == nil) {
		t.Error("/files/{id} должен описывать GET, PUT и DELETE")
	}
}
